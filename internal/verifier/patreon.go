package verifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"zahra/backend/internal/models"
)

const (
	defaultPatreonAuthorizeURL = "https://www.patreon.com/oauth2/authorize"
	defaultPatreonTokenURL     = "https://www.patreon.com/api/oauth2/token"
	defaultPatreonAPIURL       = "https://www.patreon.com"
)

// PatreonConfig holds the OAuth client credentials for Patreon.
type PatreonConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// CampaignID restricts accepted memberships to one campaign. Empty accepts any.
	CampaignID string

	AuthorizeURL string
	TokenURL     string
	APIURL       string
}

// Patreon verifies an active, paying membership.
type Patreon struct {
	cfg    PatreonConfig
	client *http.Client
}

// NewPatreon returns a Patreon verifier. A nil client gets NewHTTPClient.
func NewPatreon(cfg PatreonConfig, client *http.Client) *Patreon {
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = defaultPatreonAuthorizeURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultPatreonTokenURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultPatreonAPIURL
	}
	if client == nil {
		client = NewHTTPClient()
	}
	return &Patreon{cfg: cfg, client: client}
}

func (p *Patreon) Platform() models.Platform { return models.PlatformPatreon }

func (p *Patreon) AuthURL(state string) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {p.cfg.ClientID},
		"redirect_uri":  {p.cfg.RedirectURL},
		"scope":         {"identity identity.memberships"},
		"state":         {state},
	}
	return p.cfg.AuthorizeURL + "?" + params.Encode()
}

type patreonIdentity struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			FullName string `json:"full_name"`
			Vanity   string `json:"vanity"`
		} `json:"attributes"`
	} `json:"data"`
	Included []struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Attributes struct {
			PatronStatus                 string `json:"patron_status"`
			CurrentlyEntitledAmountCents int    `json:"currently_entitled_amount_cents"`
		} `json:"attributes"`
		Relationships struct {
			Campaign struct {
				Data struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"campaign"`
		} `json:"relationships"`
	} `json:"included"`
}

func (p *Patreon) fail(reason Reason, username string, err error) *Error {
	return &Error{Reason: reason, Platform: models.PlatformPatreon, Username: username, Err: err}
}

func (p *Patreon) Verify(ctx context.Context, code string) (*Identity, error) {
	token, err := p.exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	id, err := p.identity(ctx, token)
	if err != nil {
		return nil, err
	}

	name := id.Data.Attributes.Vanity
	if name == "" {
		name = id.Data.Attributes.FullName
	}
	if name == "" {
		name = "Unknown"
	}

	for _, inc := range id.Included {
		if inc.Type != "member" {
			continue
		}
		active := inc.Attributes.PatronStatus == "active_patron"
		paying := inc.Attributes.CurrentlyEntitledAmountCents > 0
		campaignOK := p.cfg.CampaignID == "" || inc.Relationships.Campaign.Data.ID == p.cfg.CampaignID
		if active && paying && campaignOK {
			return &Identity{AccountID: id.Data.ID, Username: name}, nil
		}
	}
	return nil, p.fail(ReasonNotSponsor, name, errors.New("no active pledge"))
}

func (p *Patreon) exchange(ctx context.Context, code string) (string, error) {
	form := url.Values{
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"redirect_uri":  {p.cfg.RedirectURL},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", p.fail(ReasonServiceError, "", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		AccessToken string `json:"access_token"`
	}
	status, err := doJSON(p.client, req, &out)
	if err != nil {
		return "", p.fail(classify(status, ReasonExchangeFailed), "", err)
	}
	if status != http.StatusOK || out.AccessToken == "" {
		return "", p.fail(ReasonExchangeFailed, "", fmt.Errorf("token exchange: status %d", status))
	}
	return out.AccessToken, nil
}

func (p *Patreon) identity(ctx context.Context, token string) (*patreonIdentity, error) {
	q := url.Values{
		"fields[user]":   {"full_name,vanity"},
		"include":        {"memberships,memberships.campaign"},
		"fields[member]": {"patron_status,currently_entitled_amount_cents"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.APIURL+"/api/oauth2/v2/identity?"+q.Encode(), nil)
	if err != nil {
		return nil, p.fail(ReasonServiceError, "", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var id patreonIdentity
	status, err := doJSON(p.client, req, &id)
	if err != nil {
		return nil, p.fail(classify(status, ReasonProfileUnavailable), "", err)
	}
	if status != http.StatusOK || id.Data.ID == "" {
		return nil, p.fail(ReasonProfileUnavailable, "", fmt.Errorf("identity: status %d", status))
	}
	return &id, nil
}

var _ Verifier = (*Patreon)(nil)
