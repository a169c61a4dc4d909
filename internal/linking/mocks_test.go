package linking_test

import (
	"context"
	"sync/atomic"

	"zahra/backend/internal/models"
	"zahra/backend/internal/notifier"
	"zahra/backend/internal/verifier"

	"github.com/stretchr/testify/mock"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, handle string, msg notifier.Message) error {
	return m.Called(handle, msg).Error(0)
}

// stubVerifier answers every Verify with the same identity or error.
type stubVerifier struct {
	platform models.Platform
	identity *verifier.Identity
	err      error
	// block waits for the context to end before answering
	block bool
	calls atomic.Int32
}

func (v *stubVerifier) Platform() models.Platform { return v.platform }

func (v *stubVerifier) AuthURL(state string) string {
	return "https://auth.example/" + string(v.platform) + "?state=" + state
}

func (v *stubVerifier) Verify(ctx context.Context, code string) (*verifier.Identity, error) {
	v.calls.Add(1)
	if v.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if v.err != nil {
		return nil, v.err
	}
	return v.identity, nil
}
