package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"zahra/backend/internal/models"
)

const (
	defaultGitHubAuthorizeURL = "https://github.com/login/oauth/authorize"
	defaultGitHubTokenURL     = "https://github.com/login/oauth/access_token"
	defaultGitHubAPIURL       = "https://api.github.com"
)

// GitHubConfig holds the OAuth app credentials and the account whose
// sponsors count as donors.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// SponsorLogin is the account the user must be sponsoring.
	SponsorLogin string

	// overridable in tests
	AuthorizeURL string
	TokenURL     string
	APIURL       string
}

// GitHub verifies an active GitHub Sponsors sponsorship of SponsorLogin.
type GitHub struct {
	cfg    GitHubConfig
	client *http.Client
}

// NewGitHub returns a GitHub verifier. A nil client gets NewHTTPClient.
func NewGitHub(cfg GitHubConfig, client *http.Client) *GitHub {
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = defaultGitHubAuthorizeURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultGitHubTokenURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultGitHubAPIURL
	}
	if client == nil {
		client = NewHTTPClient()
	}
	return &GitHub{cfg: cfg, client: client}
}

func (g *GitHub) Platform() models.Platform { return models.PlatformGitHub }

func (g *GitHub) AuthURL(state string) string {
	params := url.Values{
		"client_id":    {g.cfg.ClientID},
		"redirect_uri": {g.cfg.RedirectURL},
		"scope":        {"read:user"},
		"state":        {state},
		"allow_signup": {"false"},
	}
	return g.cfg.AuthorizeURL + "?" + params.Encode()
}

const sponsoringQuery = `query {
  viewer {
    sponsoring(first: 100) {
      nodes {
        ... on User { login }
        ... on Organization { login }
      }
    }
  }
}`

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

type githubSponsoring struct {
	Data struct {
		Viewer struct {
			Sponsoring struct {
				Nodes []struct {
					Login string `json:"login"`
				} `json:"nodes"`
			} `json:"sponsoring"`
		} `json:"viewer"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (g *GitHub) fail(reason Reason, username string, err error) *Error {
	return &Error{Reason: reason, Platform: models.PlatformGitHub, Username: username, Err: err}
}

func (g *GitHub) Verify(ctx context.Context, code string) (*Identity, error) {
	token, err := g.exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	user, err := g.user(ctx, token)
	if err != nil {
		return nil, err
	}

	sponsoring, err := g.sponsoring(ctx, token, user.Login)
	if err != nil {
		return nil, err
	}
	for _, login := range sponsoring {
		if strings.EqualFold(login, g.cfg.SponsorLogin) {
			return &Identity{AccountID: strconv.FormatInt(user.ID, 10), Username: user.Login}, nil
		}
	}
	return nil, g.fail(ReasonNotSponsor, user.Login, fmt.Errorf("not sponsoring %s", g.cfg.SponsorLogin))
}

func (g *GitHub) exchange(ctx context.Context, code string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"client_id":     g.cfg.ClientID,
		"client_secret": g.cfg.ClientSecret,
		"code":          code,
		"redirect_uri":  g.cfg.RedirectURL,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.TokenURL, bytes.NewReader(body))
	if err != nil {
		return "", g.fail(ReasonServiceError, "", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	status, err := doJSON(g.client, req, &out)
	if err != nil {
		return "", g.fail(classify(status, ReasonExchangeFailed), "", err)
	}
	if status != http.StatusOK || out.AccessToken == "" {
		// GitHub reports a bad or expired code as 200 with an error field
		return "", g.fail(ReasonExchangeFailed, "", fmt.Errorf("token exchange: status %d %s", status, out.Error))
	}
	return out.AccessToken, nil
}

func (g *GitHub) user(ctx context.Context, token string) (*githubUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.APIURL+"/user", nil)
	if err != nil {
		return nil, g.fail(ReasonServiceError, "", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var u githubUser
	status, err := doJSON(g.client, req, &u)
	if err != nil {
		return nil, g.fail(classify(status, ReasonProfileUnavailable), "", err)
	}
	if status != http.StatusOK || u.ID == 0 || u.Login == "" {
		return nil, g.fail(ReasonProfileUnavailable, "", fmt.Errorf("profile: status %d", status))
	}
	return &u, nil
}

func (g *GitHub) sponsoring(ctx context.Context, token, login string) ([]string, error) {
	body, _ := json.Marshal(map[string]string{"query": sponsoringQuery})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.APIURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, g.fail(ReasonServiceError, login, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var out githubSponsoring
	status, err := doJSON(g.client, req, &out)
	if err != nil {
		return nil, g.fail(classify(status, ReasonProfileUnavailable), login, err)
	}
	if status != http.StatusOK {
		return nil, g.fail(ReasonProfileUnavailable, login, fmt.Errorf("graphql: status %d", status))
	}
	if len(out.Errors) > 0 {
		// private sponsorships surface as GraphQL errors; there is nothing to verify against
		return nil, g.fail(ReasonNotSponsor, login, fmt.Errorf("graphql: %s", out.Errors[0].Message))
	}

	logins := make([]string, 0, len(out.Data.Viewer.Sponsoring.Nodes))
	for _, n := range out.Data.Viewer.Sponsoring.Nodes {
		logins = append(logins, n.Login)
	}
	return logins, nil
}

// classify decides whether a failed request was the platform's fault.
func classify(status int, otherwise Reason) Reason {
	if status == 0 || status >= 500 || status == http.StatusTooManyRequests {
		return ReasonServiceError
	}
	return otherwise
}

var _ Verifier = (*GitHub)(nil)
