package storage_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"zahra/backend/internal/models"
	"zahra/backend/internal/storage"
	"zahra/backend/internal/storage/storagetest"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCase(id, community, target string, at time.Time) *models.Case {
	return &models.Case{
		CaseID:        id,
		CommunityID:   community,
		ActionType:    models.ActionWarn,
		TargetID:      target,
		TargetDisplay: gofakeit.Username(),
		ActorID:       "1",
		ActorDisplay:  gofakeit.Username(),
		Reason:        "spam",
		CreatedAt:     at,
		Active:        true,
	}
}

func TestCreateAndGetCase(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewStore(t)

	dur := int64(3600)
	c := newCase("a3f9b2c", "42", "100", time.Now().UTC())
	c.ActionType = models.ActionMute
	c.Duration = &dur
	require.NoError(t, s.CreateCase(ctx, c))

	exists, err := s.CaseExists(ctx, "a3f9b2c")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := s.GetCaseByID(ctx, "a3f9b2c")
	require.NoError(t, err)
	assert.Equal(t, models.ActionMute, got.ActionType)
	require.NotNil(t, got.Duration)
	assert.Equal(t, int64(3600), *got.Duration)
	assert.True(t, got.Active)

	_, err = s.GetCaseByID(ctx, "0000000")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	exists, err = s.CaseExists(ctx, "0000000")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateCase_DuplicateID(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewStore(t)

	require.NoError(t, s.CreateCase(ctx, newCase("deadbee", "42", "100", time.Now())))
	err := s.CreateCase(ctx, newCase("deadbee", "7", "200", time.Now()))
	assert.ErrorIs(t, err, storage.ErrDuplicateCaseID)

	got, err := s.GetCaseByID(ctx, "deadbee")
	require.NoError(t, err)
	assert.Equal(t, "42", got.CommunityID, "the loser must not overwrite the first row")
}

func TestCreateCase_ConcurrentSameIDHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewStore(t)

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.CreateCase(ctx, newCase("1234567", "42", fmt.Sprint(i), time.Now()))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, storage.ErrDuplicateCaseID)
	}
	assert.Equal(t, 1, ok)
}

func TestGetCaseInCommunity(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewStore(t)
	require.NoError(t, s.CreateCase(ctx, newCase("abcdef0", "42", "100", time.Now())))

	got, err := s.GetCaseInCommunity(ctx, "abcdef0", "42")
	require.NoError(t, err)
	assert.Equal(t, "100", got.TargetID)

	_, err = s.GetCaseInCommunity(ctx, "abcdef0", "99")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListCasesByUser_NewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateCase(ctx, newCase(fmt.Sprintf("000000%d", i), "42", "100", base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, s.CreateCase(ctx, newCase("fffffff", "42", "200", base)))
	require.NoError(t, s.CreateCase(ctx, newCase("eeeeeee", "7", "100", base)))

	cases, err := s.ListCasesByUser(ctx, "42", "100", 3)
	require.NoError(t, err)
	require.Len(t, cases, 3)
	assert.Equal(t, "0000004", cases[0].CaseID)
	assert.Equal(t, "0000003", cases[1].CaseID)
	assert.Equal(t, "0000002", cases[2].CaseID)

	none, err := s.ListCasesByUser(ctx, "42", "nobody", 25)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeactivateCase(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewStore(t)
	require.NoError(t, s.CreateCase(ctx, newCase("c0ffee0", "42", "100", time.Now())))

	changed, err := s.DeactivateCase(ctx, "c0ffee0", "99")
	require.NoError(t, err)
	assert.False(t, changed, "another community cannot pardon")

	changed, err = s.DeactivateCase(ctx, "c0ffee0", "42")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.DeactivateCase(ctx, "c0ffee0", "42")
	require.NoError(t, err)
	assert.False(t, changed, "active only moves from true to false once")

	got, err := s.GetCaseByID(ctx, "c0ffee0")
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestUpsertUser_IsFieldScoped(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewStore(t)
	notes := "met at the meetup"

	u, err := s.UpsertUser(ctx, models.UserUpsert{UserID: "9", DisplayName: "old", Add: []models.GroupFlag{models.FlagDonor}, Notes: &notes})
	require.NoError(t, err)
	assert.True(t, u.IsDonor)
	assert.False(t, u.IsFriend)

	u, err = s.UpsertUser(ctx, models.UserUpsert{UserID: "9", DisplayName: "new", Add: []models.GroupFlag{models.FlagFriend}})
	require.NoError(t, err)
	assert.Equal(t, "new", u.DisplayName)
	assert.True(t, u.IsDonor, "a friend upsert must not clear the donor flag")
	assert.True(t, u.IsFriend)
	require.NotNil(t, u.Notes)
	assert.Equal(t, notes, *u.Notes)
}

func TestSetUserFlag(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewStore(t)

	_, err := s.SetUserFlag(ctx, "missing", models.FlagFriend, false)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.UpsertUser(ctx, models.UserUpsert{UserID: "9", DisplayName: "x", Add: []models.GroupFlag{models.FlagDonor, models.FlagGirlsMod}})
	require.NoError(t, err)

	u, err := s.SetUserFlag(ctx, "9", models.FlagGirlsMod, false)
	require.NoError(t, err)
	assert.False(t, u.IsGirlsMod)
	assert.True(t, u.IsDonor)

	// already false: still a match, not a miss
	u, err = s.SetUserFlag(ctx, "9", models.FlagGirlsMod, false)
	require.NoError(t, err)
	assert.False(t, u.IsGirlsMod)
}

func TestLinkDonor_CreatesThenReplaces(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewStore(t)
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	u, err := s.LinkDonor(ctx, models.UserUpsert{UserID: "9", DisplayName: "alice"}, &models.IdentityLink{
		UserID: "9", Platform: models.PlatformGitHub, PlatformAccountID: "111", PlatformUsername: "alice-gh", VerifiedAt: first,
	})
	require.NoError(t, err)
	assert.True(t, u.IsDonor)

	require.NoError(t, mustDeactivate(t, s, "9", models.PlatformGitHub))
	links, err := s.GetIdentityLinks(ctx, "9")
	require.NoError(t, err)
	assert.Empty(t, links)

	second := first.Add(24 * time.Hour)
	_, err = s.LinkDonor(ctx, models.UserUpsert{UserID: "9", DisplayName: "alice"}, &models.IdentityLink{
		UserID: "9", Platform: models.PlatformGitHub, PlatformAccountID: "222", PlatformUsername: "alice2", VerifiedAt: second,
	})
	require.NoError(t, err)

	links, err = s.GetIdentityLinks(ctx, "9")
	require.NoError(t, err)
	require.Len(t, links, 1, "one row per user and platform")
	assert.Equal(t, "222", links[0].PlatformAccountID)
	assert.Equal(t, "alice2", links[0].PlatformUsername)
	assert.True(t, links[0].Active)
	assert.True(t, links[0].VerifiedAt.Equal(second))
}

func TestGetIdentityLinks_MultiplePlatforms(t *testing.T) {
	ctx := context.Background()
	s := storagetest.NewStore(t)

	for _, p := range models.Platforms {
		require.NoError(t, s.UpsertIdentityLink(ctx, &models.IdentityLink{
			UserID: "9", Platform: p, PlatformAccountID: "acc-" + string(p), PlatformUsername: "u", VerifiedAt: time.Now(),
		}))
	}

	links, err := s.GetIdentityLinks(ctx, "9")
	require.NoError(t, err)
	assert.Len(t, links, 2)

	changed, err := s.DeactivateIdentityLink(ctx, "9", models.PlatformPatreon)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.DeactivateIdentityLink(ctx, "9", models.PlatformPatreon)
	require.NoError(t, err)
	assert.False(t, changed)

	links, err = s.GetIdentityLinks(ctx, "9")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, models.PlatformGitHub, links[0].Platform)
}

func TestPing(t *testing.T) {
	assert.NoError(t, storagetest.NewStore(t).Ping(context.Background()))
}

func mustDeactivate(t *testing.T, s *storage.Service, userID string, p models.Platform) error {
	t.Helper()
	changed, err := s.DeactivateIdentityLink(context.Background(), userID, p)
	if err != nil {
		return err
	}
	if !changed {
		return fmt.Errorf("link %s/%s was not active", userID, p)
	}
	return nil
}
