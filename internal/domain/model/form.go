package model

// Form is a lead generation form owned by a page.
type Form struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FormQuestion is one question on a lead form.
type FormQuestion struct {
	ID      string               `json:"id,omitempty"`
	Key     string               `json:"key"`
	Label   string               `json:"label"`
	Type    string               `json:"type"`
	Options []FormQuestionOption `json:"options,omitempty"`
}

// FormQuestionOption is a selectable answer for multiple-choice questions.
type FormQuestionOption struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// FormFields describes the question layout of a single form.
type FormFields struct {
	ID         string         `json:"id"`
	Questions  []FormQuestion `json:"questions"`
	LeadsCount int            `json:"leads_count"`
	Locale     string         `json:"locale"`
}
