package graph

import (
	"context"
	"net/http"
	"net/url"
	"slices"

	"github.com/ericfisherdev/leadsync/internal/domain/model"
	"github.com/ericfisherdev/leadsync/internal/domain/port/driven"
)

// Field lists requested from the Graph API. The API only returns requested
// fields, so these are part of the external contract.
const (
	profileFields      = "id,name"
	pageListFields     = "id,name,access_token"
	pageFields         = "id,name"
	formFields         = "id,name"
	formDetailFields   = "questions,leads_count,locale"
	subscriptionFields = "subscribed_fields"
	leadFields         = "created_time,field_data,ad_id,ad_name,adset_id,adset_name,campaign_id,campaign_name,form_id,page_id,platform,custom_disclaimer_responses"
)

// maxListPages caps cursor pagination so a misbehaving API cannot loop forever.
const maxListPages = 50

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type paging struct {
	Cursors struct {
		After string `json:"after"`
	} `json:"cursors"`
	Next string `json:"next"`
}

type pageListResponse struct {
	Data   []model.Page `json:"data"`
	Paging paging       `json:"paging"`
}

type formListResponse struct {
	Data   []model.Form `json:"data"`
	Paging paging       `json:"paging"`
}

type subscribedAppsResponse struct {
	Data []struct {
		SubscribedFields []string `json:"subscribed_fields"`
	} `json:"data"`
}

// ExchangeCodeForToken trades an OAuth authorization code for a short-lived
// user access token.
func (c *Client) ExchangeCodeForToken(ctx context.Context, code, redirectURI string) (string, error) {
	params := url.Values{}
	params.Set("client_id", c.app.AppID)
	params.Set("client_secret", c.app.AppSecret)
	params.Set("redirect_uri", redirectURI)
	params.Set("code", code)

	var resp tokenResponse
	if err := c.getInto(ctx, c.httpClient, "exchange_code", "/oauth/access_token", params, &resp); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// ExchangeLongLivedToken trades a short-lived user token for a long-lived one.
func (c *Client) ExchangeLongLivedToken(ctx context.Context, shortLivedToken string) (string, error) {
	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", c.app.AppID)
	params.Set("client_secret", c.app.AppSecret)
	params.Set("fb_exchange_token", shortLivedToken)

	var resp tokenResponse
	if err := c.getInto(ctx, c.httpClient, "exchange_long_lived", "/oauth/access_token", params, &resp); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// GetUserProfile returns the id and name of the user owning accessToken.
func (c *Client) GetUserProfile(ctx context.Context, accessToken string) (*model.UserProfile, error) {
	var profile model.UserProfile
	if err := c.getInto(ctx, c.httpClient, "get_user_profile", "/me", withToken(accessToken, profileFields), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetPages returns every page the user manages, following cursor pagination,
// in the order the API lists them.
func (c *Client) GetPages(ctx context.Context, accessToken string) ([]model.Page, error) {
	params := withToken(accessToken, pageListFields)
	pages := []model.Page{}

	for range maxListPages {
		var resp pageListResponse
		if err := c.getInto(ctx, c.httpClient, "get_pages", "/me/accounts", params, &resp); err != nil {
			return nil, err
		}
		pages = append(pages, resp.Data...)

		if resp.Paging.Next == "" || resp.Paging.Cursors.After == "" {
			break
		}
		params.Set("after", resp.Paging.Cursors.After)
	}

	return pages, nil
}

// GetPage fetches the id and name of a page. It is the minimal request that
// proves a page token is still accepted.
func (c *Client) GetPage(ctx context.Context, pageID, pageToken string) (*model.Page, error) {
	var page model.Page
	if err := c.getInto(ctx, c.httpClient, "get_page", "/"+url.PathEscape(pageID), withToken(pageToken, pageFields), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetForms returns the lead forms owned by a page. Responses may be served
// from the HTTP cache.
func (c *Client) GetForms(ctx context.Context, pageID, pageToken string) ([]model.Form, error) {
	params := withToken(pageToken, formFields)
	path := "/" + url.PathEscape(pageID) + "/leadgen_forms"
	forms := []model.Form{}

	for range maxListPages {
		var resp formListResponse
		if err := c.getInto(ctx, c.cachedClient, "get_forms", path, params, &resp); err != nil {
			return nil, err
		}
		forms = append(forms, resp.Data...)

		if resp.Paging.Next == "" || resp.Paging.Cursors.After == "" {
			break
		}
		params.Set("after", resp.Paging.Cursors.After)
	}

	return forms, nil
}

// GetFormFields returns the questions of a single form. pageID is accepted for
// symmetry with the other page-scoped calls; the form id alone addresses it.
func (c *Client) GetFormFields(ctx context.Context, _, formID, pageToken string) (*model.FormFields, error) {
	fields := model.FormFields{ID: formID}
	if err := c.getInto(ctx, c.cachedClient, "get_form_fields", "/"+url.PathEscape(formID), withToken(pageToken, formDetailFields), &fields); err != nil {
		return nil, err
	}
	if fields.Questions == nil {
		fields.Questions = []model.FormQuestion{}
	}
	return &fields, nil
}

// GetLead fetches a single lead submission.
func (c *Client) GetLead(ctx context.Context, _, leadID, pageToken string) (*model.Lead, error) {
	lead := model.Lead{ID: leadID}
	if err := c.getInto(ctx, c.httpClient, "get_lead", "/"+url.PathEscape(leadID), withToken(pageToken, leadFields), &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

// SubscribePageToLeads subscribes the app to leadgen webhooks for a page.
func (c *Client) SubscribePageToLeads(ctx context.Context, pageID, pageToken string) error {
	params := url.Values{}
	params.Set("subscribed_fields", model.LeadgenField)
	params.Set("access_token", pageToken)

	_, err := c.call(ctx, c.httpClient, "subscribe_page", http.MethodPost, "/"+url.PathEscape(pageID)+"/subscribed_apps", params)
	return err
}

// VerifyPageSubscription checks that some app subscription on the page
// includes the leadgen field.
func (c *Client) VerifyPageSubscription(ctx context.Context, pageID, pageToken string) error {
	var resp subscribedAppsResponse
	path := "/" + url.PathEscape(pageID) + "/subscribed_apps"
	if err := c.getInto(ctx, c.httpClient, "verify_page_subscription", path, withToken(pageToken, subscriptionFields), &resp); err != nil {
		return err
	}

	for _, sub := range resp.Data {
		if slices.Contains(sub.SubscribedFields, model.LeadgenField) {
			return nil
		}
	}
	return driven.ErrMissingSubscription
}

func (c *Client) getInto(ctx context.Context, hc *http.Client, op, path string, params url.Values, out any) error {
	body, err := c.call(ctx, hc, op, http.MethodGet, path, params)
	if err != nil {
		return err
	}
	return decode(body, out)
}

func withToken(token, fields string) url.Values {
	params := url.Values{}
	params.Set("fields", fields)
	params.Set("access_token", token)
	return params
}
