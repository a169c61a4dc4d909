package telegram_test

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"strings"
	"sync"

	"zahra/backend/internal/models"
	"zahra/backend/internal/verifier"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type apiCall struct {
	endpoint string
	params   tgbotapi.Params
}

// fakeAPI records everything the bot sends and answers getChatMember with status.
type fakeAPI struct {
	mu     sync.Mutex
	sent   []tgbotapi.Chattable
	calls  []apiCall
	status string
	failOn string
	nextID int
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{endpoint: endpoint, params: maps.Clone(params)})
	if endpoint == f.failOn {
		return nil, errors.New("Bad Request: not enough rights")
	}
	if endpoint == "getChatMember" {
		return &tgbotapi.APIResponse{Ok: true, Result: json.RawMessage(`{"status":"` + f.status + `"}`)}, nil
	}
	return &tgbotapi.APIResponse{Ok: true, Result: json.RawMessage(`true`)}, nil
}

// endpoints lists the calls made, getChatMember excluded.
func (f *fakeAPI) endpoints() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.endpoint != "getChatMember" {
			out = append(out, c.endpoint)
		}
	}
	return out
}

func (f *fakeAPI) call(endpoint string) (apiCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.endpoint == endpoint {
			return c, true
		}
	}
	return apiCall{}, false
}

func (f *fakeAPI) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return textOf(f.sent[len(f.sent)-1])
}

func textOf(c tgbotapi.Chattable) string {
	switch v := c.(type) {
	case tgbotapi.MessageConfig:
		return v.Text
	case tgbotapi.EditMessageTextConfig:
		return v.Text
	}
	return ""
}

type stubVerifier struct {
	platform models.Platform

	mu        sync.Mutex
	lastState string
}

func (v *stubVerifier) Platform() models.Platform { return v.platform }

func (v *stubVerifier) AuthURL(state string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastState = state
	return "https://auth.example/" + string(v.platform) + "?state=" + state
}

func (v *stubVerifier) Verify(context.Context, string) (*verifier.Identity, error) {
	return &verifier.Identity{AccountID: "1", Username: strings.ToUpper(string(v.platform))}, nil
}

func (v *stubVerifier) state() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastState
}
