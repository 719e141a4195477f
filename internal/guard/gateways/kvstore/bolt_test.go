package kvstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func openTempStore(t *testing.T) Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "guard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltStore_PutGet(t *testing.T) {
	s := openTempStore(t)

	var got record
	found, err := s.Get(NamespaceSynced, KeySettings, &got)
	require.NoError(t, err)
	assert.False(t, found, "absent key is not an error")

	want := record{Name: "a", Count: 2}
	require.NoError(t, s.Put(NamespaceSynced, KeySettings, want))

	found, err = s.Get(NamespaceSynced, KeySettings, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestBoltStore_NamespacesAreIsolated(t *testing.T) {
	s := openTempStore(t)
	require.NoError(t, s.Put(NamespaceSynced, "k", record{Name: "synced"}))

	var got record
	found, err := s.Get(NamespaceLocal, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBoltStore_Delete(t *testing.T) {
	s := openTempStore(t)
	require.NoError(t, s.Put(NamespaceLocal, KeyStatistics, record{Count: 1}))
	require.NoError(t, s.Delete(NamespaceLocal, KeyStatistics))

	var got record
	found, err := s.Get(NamespaceLocal, KeyStatistics, &got)
	require.NoError(t, err)
	assert.False(t, found)

	// deleting an absent key is a no-op
	assert.NoError(t, s.Delete(NamespaceLocal, KeyStatistics))
}

func TestBoltStore_Subscribe(t *testing.T) {
	s := openTempStore(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Put(NamespaceSynced, KeyRules, record{}))

	select {
	case c := <-ch:
		assert.Equal(t, Change{Namespace: NamespaceSynced, Key: KeyRules}, c)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change notification")
	}

	cancel()
	// writes after cancel must not panic
	assert.NoError(t, s.Put(NamespaceSynced, KeyRules, record{Count: 1}))
}

func TestBoltStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(NamespaceSynced, "k", record{Name: "persisted"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	var got record
	found, err := s.Get(NamespaceSynced, "k", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "persisted", got.Name)
}

func TestMemStore_MatchesContract(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	var got record
	found, err := s.Get(NamespaceSynced, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put(NamespaceSynced, "k", record{Name: "m", Count: 3}))
	found, err = s.Get(NamespaceSynced, "k", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, record{Name: "m", Count: 3}, got)

	ch, cancel := s.Subscribe()
	defer cancel()
	require.NoError(t, s.Delete(NamespaceSynced, "k"))
	select {
	case c := <-ch:
		assert.Equal(t, Change{Namespace: NamespaceSynced, Key: "k"}, c)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}
