package ledger_test

import (
	"context"

	"zahra/backend/internal/models"
	"zahra/backend/internal/storage"

	"github.com/stretchr/testify/mock"
)

// MockStore mocks storage.Storage. Only the case methods are expected to be hit.
type MockStore struct {
	mock.Mock
	storage.Storage
}

func (m *MockStore) CaseExists(ctx context.Context, caseID string) (bool, error) {
	args := m.Called(caseID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) CreateCase(ctx context.Context, c *models.Case) error {
	return m.Called(c.CaseID).Error(0)
}

func (m *MockStore) GetCaseByID(ctx context.Context, caseID string) (*models.Case, error) {
	args := m.Called(caseID)
	c, _ := args.Get(0).(*models.Case)
	return c, args.Error(1)
}

func (m *MockStore) DeactivateCase(ctx context.Context, caseID, communityID string) (bool, error) {
	args := m.Called(caseID, communityID)
	return args.Bool(0), args.Error(1)
}

// MockMetrics records which counters were bumped.
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordCaseCreated(actionType string)       { m.Called(actionType) }
func (m *MockMetrics) RecordCaseIDCollision()                    { m.Called() }
func (m *MockMetrics) RecordCaseIDExhausted()                    { m.Called() }
func (m *MockMetrics) RecordCacheLookup(kind string, hit bool)   { m.Called(kind, hit) }
func (m *MockMetrics) RecordLinkIssued(platform string)          { m.Called(platform) }
func (m *MockMetrics) RecordLinkOutcome(platform, status string) { m.Called(platform, status) }

// mapStore is a minimal in-memory case store for high-volume tests.
type mapStore struct {
	storage.Storage
	cases map[string]models.Case
}

func newMapStore() *mapStore {
	return &mapStore{cases: make(map[string]models.Case)}
}

func (s *mapStore) CaseExists(_ context.Context, caseID string) (bool, error) {
	_, ok := s.cases[caseID]
	return ok, nil
}

func (s *mapStore) CreateCase(_ context.Context, c *models.Case) error {
	if _, ok := s.cases[c.CaseID]; ok {
		return storage.ErrDuplicateCaseID
	}
	s.cases[c.CaseID] = *c
	return nil
}
