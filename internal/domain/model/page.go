package model

// Page is a Facebook page as listed by /me/accounts. AccessToken is empty when
// the listing token lacks the permission to read page tokens.
type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token,omitempty"`
}

// SubscriptionOutcome is the result of subscribing one page to leadgen
// webhooks during a connection flow. Err is nil on success.
type SubscriptionOutcome struct {
	Page Page
	Err  error
}

// Subscribed reports whether the subscription call succeeded.
func (o SubscriptionOutcome) Subscribed() bool {
	return o.Err == nil
}
