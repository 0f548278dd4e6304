package model

// ConnectionMode records how a credential record was created.
type ConnectionMode string

const (
	ConnectionModeOAuth  ConnectionMode = "oauth"
	ConnectionModeManual ConnectionMode = "manual"
)

// LeadgenField is the webhook field name Facebook uses for lead notifications
// and the subscribed_fields value required on every connected page.
const LeadgenField = "leadgen"
