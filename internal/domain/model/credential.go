package model

import "time"

// UserProfile is the connected Facebook identity returned by /me.
type UserProfile struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

// PageCredential is a page the connected user manages, together with its
// page-scoped access token. Subscribed records whether the leadgen webhook
// subscription succeeded at connection time; it is not re-checked later.
type PageCredential struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token" validate:"required"`
	Subscribed  bool   `json:"subscribed"`
}

// CredentialRecord is everything stored for one installation after a
// successful connection. A record is either absent or complete.
type CredentialRecord struct {
	UserAccessToken string `validate:"required"`
	User            UserProfile
	Pages           []PageCredential `validate:"unique=ID,dive"`
	Mode            ConnectionMode   `validate:"omitempty,oneof=oauth manual"`
	UpdatedAt       time.Time
}

// Page returns the stored credential for pageID, or false if the page is not
// part of the record.
func (r *CredentialRecord) Page(pageID string) (PageCredential, bool) {
	if r == nil {
		return PageCredential{}, false
	}
	for _, p := range r.Pages {
		if p.ID == pageID {
			return p, true
		}
	}
	return PageCredential{}, false
}
