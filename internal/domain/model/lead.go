package model

// LeadFieldValue is a single answer submitted on a lead form. Facebook always
// sends values as a list, even for single-answer questions.
type LeadFieldValue struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// DisclaimerResponse is the answer to a custom disclaimer checkbox.
type DisclaimerResponse struct {
	CheckboxKey string `json:"checkbox_key"`
	IsChecked   any    `json:"is_checked"`
}

// Lead is a single lead form submission.
type Lead struct {
	ID                        string               `json:"id"`
	CreatedTime               string               `json:"created_time"`
	FieldData                 []LeadFieldValue     `json:"field_data"`
	AdID                      string               `json:"ad_id,omitempty"`
	AdName                    string               `json:"ad_name,omitempty"`
	AdsetID                   string               `json:"adset_id,omitempty"`
	AdsetName                 string               `json:"adset_name,omitempty"`
	CampaignID                string               `json:"campaign_id,omitempty"`
	CampaignName              string               `json:"campaign_name,omitempty"`
	FormID                    string               `json:"form_id"`
	PageID                    string               `json:"page_id"`
	Platform                  string               `json:"platform,omitempty"`
	CustomDisclaimerResponses []DisclaimerResponse `json:"custom_disclaimer_responses,omitempty"`
}

// LeadNotification is one leadgen change delivered by the webhook.
type LeadNotification struct {
	LeadID      string `json:"leadgen_id"`
	PageID      string `json:"page_id"`
	FormID      string `json:"form_id"`
	AdID        string `json:"ad_id,omitempty"`
	CreatedTime int64  `json:"created_time,omitempty"`
}
