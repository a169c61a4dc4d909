package verifier_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"zahra/backend/internal/models"
	"zahra/backend/internal/verifier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type member struct {
	status   string
	cents    int
	campaign string
}

func patreonServer(t *testing.T, vanity string, members ...member) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "pt"})
	})
	mux.HandleFunc("/api/oauth2/v2/identity", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pt", r.Header.Get("Authorization"))
		included := []map[string]any{}
		for i, m := range members {
			included = append(included, map[string]any{
				"type": "member",
				"id":   "m" + string(rune('0'+i)),
				"attributes": map[string]any{
					"patron_status":                   m.status,
					"currently_entitled_amount_cents": m.cents,
				},
				"relationships": map[string]any{
					"campaign": map[string]any{"data": map[string]any{"id": m.campaign, "type": "campaign"}},
				},
			})
		}
		included = append(included, map[string]any{"type": "campaign", "id": "c1"})
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"id":         "p-77",
				"attributes": map[string]any{"full_name": "Alice Example", "vanity": vanity},
			},
			"included": included,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newPatreon(srv *httptest.Server, campaign string) *verifier.Patreon {
	return verifier.NewPatreon(verifier.PatreonConfig{
		ClientID:    "pid",
		RedirectURL: "http://localhost:4000/oauth/patreon/callback",
		CampaignID:  campaign,
		TokenURL:    srv.URL + "/api/oauth2/token",
		APIURL:      srv.URL,
	}, verifier.NewHTTPClient(verifier.WithMaxRetries(0)))
}

func TestPatreon_AuthURL(t *testing.T) {
	p := verifier.NewPatreon(verifier.PatreonConfig{ClientID: "pid"}, nil)
	u, err := url.Parse(p.AuthURL("s1"))
	require.NoError(t, err)
	assert.Equal(t, "code", u.Query().Get("response_type"))
	assert.Equal(t, "identity identity.memberships", u.Query().Get("scope"))
	assert.Equal(t, "s1", u.Query().Get("state"))
}

func TestPatreon_ActivePledge(t *testing.T) {
	srv := patreonServer(t, "", member{status: "former_patron", cents: 500, campaign: "c1"}, member{status: "active_patron", cents: 300, campaign: "c1"})

	id, err := newPatreon(srv, "c1").Verify(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, &verifier.Identity{AccountID: "p-77", Username: "Alice Example"}, id)
}

func TestPatreon_NotSponsor(t *testing.T) {
	tests := []struct {
		name     string
		campaign string
		members  []member
	}{
		{"no memberships", "", nil},
		{"other campaign", "c1", []member{{status: "active_patron", cents: 500, campaign: "c9"}}},
		{"free tier", "", []member{{status: "active_patron", cents: 0, campaign: "c1"}}},
		{"declined", "", []member{{status: "declined_patron", cents: 500, campaign: "c1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := patreonServer(t, "alice", tt.members...)
			_, err := newPatreon(srv, tt.campaign).Verify(context.Background(), "good-code")

			var verr *verifier.Error
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, verifier.ReasonNotSponsor, verr.Reason)
			assert.Equal(t, "alice", verr.Username)
			assert.Equal(t, models.PlatformPatreon, verr.Platform)
		})
	}
}

func TestPatreon_BadCode(t *testing.T) {
	srv := patreonServer(t, "alice")
	_, err := newPatreon(srv, "").Verify(context.Background(), "stale")
	assert.Equal(t, verifier.ReasonExchangeFailed, verifier.ReasonOf(err))
}

func TestPatreon_Unreachable(t *testing.T) {
	srv := patreonServer(t, "alice")
	p := newPatreon(srv, "")
	srv.Close()

	_, err := p.Verify(context.Background(), "good-code")
	assert.Equal(t, verifier.ReasonServiceError, verifier.ReasonOf(err))
}
