package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusgate/focusgate/internal/guard/common/log"
	"github.com/focusgate/focusgate/internal/guard/domain"
	"github.com/focusgate/focusgate/internal/guard/gateways/kvstore"
)

func newTestRepo(t *testing.T) (*Repository, kvstore.Store) {
	t.Helper()
	store := kvstore.NewMemStore()
	t.Cleanup(func() { _ = store.Close() })
	repo, err := New(store, log.NewNoopLogger(), 0.01)
	require.NoError(t, err)
	return repo, store
}

func TestRepository_AddAndMatching(t *testing.T) {
	repo, _ := newTestRepo(t)

	rule, err := repo.Add("https://www.Example.com/")
	require.NoError(t, err)
	assert.Equal(t, "example.com", rule.Domain)
	assert.True(t, rule.AlwaysBlock)
	assert.Equal(t, domain.BlockSoft, rule.BlockType)

	got := repo.Matching("example.com")
	require.Len(t, got, 1)
	assert.Equal(t, "example.com", got[0].Domain)

	// subdomains reach the stored rule through the parent-suffix walk
	require.Len(t, repo.Matching("mail.example.com"), 1)
	assert.Empty(t, repo.Matching("other.com"))
}

func TestRepository_AddRejectsDuplicatesAndInvalid(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Add("example.com")
	require.NoError(t, err)

	_, err = repo.Add("www.example.com") // normalizes to the same domain
	assert.ErrorIs(t, err, ErrDuplicateDomain)

	_, err = repo.Add("not a domain")
	assert.ErrorIs(t, err, domain.ErrInvalidDomain)
	assert.Equal(t, 1, repo.Len())
}

func TestRepository_Remove(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Add("example.com")
	require.NoError(t, err)

	require.NoError(t, repo.Remove("example.com"))
	assert.Zero(t, repo.Len())
	assert.Empty(t, repo.Matching("example.com"))

	assert.ErrorIs(t, repo.Remove("example.com"), ErrUnknownDomain)
}

func TestRepository_Update(t *testing.T) {
	repo, _ := newTestRepo(t)
	rule, err := repo.Add("example.com")
	require.NoError(t, err)

	rule.AlwaysBlock = false
	rule.BlockType = domain.BlockHard
	rule.TimeSlots = []domain.TimeSlot{
		{StartTime: "09:00", EndTime: "17:00", Days: []domain.Weekday{domain.Mon}},
	}
	require.NoError(t, repo.Update(rule))

	got := repo.Snapshot()
	require.Len(t, got, 1)
	assert.False(t, got[0].AlwaysBlock)
	assert.Equal(t, domain.BlockHard, got[0].BlockType)

	// invalid replacement is rejected before any write
	bad := got[0]
	bad.TimeSlots = []domain.TimeSlot{{StartTime: "25:00", EndTime: "17:00", Days: []domain.Weekday{domain.Mon}}}
	assert.ErrorIs(t, repo.Update(bad), domain.ErrInvalidTimeSlot)

	assert.ErrorIs(t, repo.Update(domain.Rule{Domain: "missing.com", AlwaysBlock: true, BlockType: domain.BlockSoft}), ErrUnknownDomain)
}

func TestRepository_ReplaceAll(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Add("old.com")
	require.NoError(t, err)

	incoming := []domain.Rule{
		{Domain: "a.com", AlwaysBlock: true, BlockType: domain.BlockSoft},
		{Domain: "b.com", AlwaysBlock: true, BlockType: domain.BlockHard},
	}
	require.NoError(t, repo.ReplaceAll(incoming))
	assert.Equal(t, 2, repo.Len())
	assert.Empty(t, repo.Matching("old.com"))

	dup := []domain.Rule{
		{Domain: "a.com", AlwaysBlock: true, BlockType: domain.BlockSoft},
		{Domain: "a.com", AlwaysBlock: true, BlockType: domain.BlockSoft},
	}
	assert.ErrorIs(t, repo.ReplaceAll(dup), ErrDuplicateDomain)
	assert.Equal(t, 2, repo.Len(), "failed replace must not change the list")
}

func TestRepository_MigratesLegacyList(t *testing.T) {
	store := kvstore.NewMemStore()
	defer store.Close()
	require.NoError(t, store.Put(kvstore.NamespaceSynced, kvstore.KeyLegacyRules, []string{"a.com", "b.com"}))

	repo, err := New(store, log.NewNoopLogger(), 0.01)
	require.NoError(t, err)

	got := repo.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, domain.Rule{
		Domain:      "a.com",
		TimeSlots:   []domain.TimeSlot{},
		AlwaysBlock: true,
		BlockType:   domain.BlockSoft,
	}, got[0])

	// migration persisted the V2 list and left the legacy key in place
	var v2 []domain.Rule
	found, err := store.Get(kvstore.NamespaceSynced, kvstore.KeyRules, &v2)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, v2, 2)

	var legacy []string
	found, err = store.Get(kvstore.NamespaceSynced, kvstore.KeyLegacyRules, &legacy)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRepository_ReloadPicksUpExternalWrites(t *testing.T) {
	repo, store := newTestRepo(t)
	require.NoError(t, store.Put(kvstore.NamespaceSynced, kvstore.KeyRules, []domain.Rule{
		{Domain: "fresh.com", AlwaysBlock: true, BlockType: domain.BlockSoft},
	}))

	require.NoError(t, repo.Reload())
	require.Len(t, repo.Matching("fresh.com"), 1)
}

// failingStore wraps a Store and fails every Put.
type failingStore struct {
	kvstore.Store
}

func (f failingStore) Put(namespace, key string, v any) error {
	return errors.New("disk full")
}

func TestRepository_FailedPersistLeavesMemoryUntouched(t *testing.T) {
	repo, store := newTestRepo(t)
	_, err := repo.Add("a.com")
	require.NoError(t, err)

	repo.store = failingStore{Store: store}
	_, err = repo.Add("b.com")
	require.Error(t, err)

	assert.Equal(t, 1, repo.Len())
	assert.Empty(t, repo.Matching("b.com"))
}
