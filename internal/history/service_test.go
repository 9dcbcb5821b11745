package history

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantlabs/chatlink/internal/logging"
)

// fakeFetcher scripts the remote side.
type fakeFetcher struct {
	sessions     []Summary
	sessionsErr  error
	exchanges    []Exchange
	exchangesErr error
	fetches      int
}

func (f *fakeFetcher) Sessions(context.Context) ([]Summary, error) {
	f.fetches++
	return f.sessions, f.sessionsErr
}

func (f *fakeFetcher) Messages(context.Context, string) ([]Exchange, error) {
	return f.exchanges, f.exchangesErr
}

func newTestService(t *testing.T, remote Fetcher) (*Service, *Store) {
	t.Helper()
	store := tempStore(t)
	return NewService(store, remote, logging.NewNop(), nil), store
}

func TestRefreshMergesServerFirst(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.Save([]Summary{sum("A", "local a"), sum("B", "local b")}))

	remote := &fakeFetcher{sessions: []Summary{sum("B", "server b"), sum("C", "server c")}}
	svc := NewService(store, remote, logging.NewNop(), nil)

	got := svc.Refresh(context.Background())

	require.Len(t, got, 3)
	assert.Equal(t, "B", got[0].ID)
	assert.Equal(t, "server b", got[0].Title)
	assert.Equal(t, "C", got[1].ID)
	assert.Equal(t, "A", got[2].ID)
}

func TestRefreshDegradesOnFetchFailure(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.Save([]Summary{sum("A", "cached")}))

	remote := &fakeFetcher{sessionsErr: errors.New("gateway down")}
	svc := NewService(store, remote, logging.NewNop(), nil)

	got := svc.Refresh(context.Background())

	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].ID)
}

func TestRefreshWithoutRemote(t *testing.T) {
	svc, _ := newTestService(t, nil)

	assert.NotPanics(t, func() { svc.Refresh(context.Background()) })
}

func TestAddIsIdempotentPerSession(t *testing.T) {
	svc, store := newTestService(t, &fakeFetcher{})

	svc.Add(sum("sess_1", "first title"))
	svc.Add(sum("sess_1", "second title"))

	list := svc.List()
	require.Len(t, list, 1)
	assert.Equal(t, "first title", list[0].Title)

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
}

func TestAddPrepends(t *testing.T) {
	svc, _ := newTestService(t, &fakeFetcher{})

	svc.Add(sum("old", "old"))
	svc.Add(sum("new", "new"))

	list := svc.List()
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
}

func TestDeletePersists(t *testing.T) {
	svc, store := newTestService(t, &fakeFetcher{})
	svc.Add(sum("a", "a"))
	svc.Add(sum("b", "b"))

	svc.Delete("a")

	assert.False(t, svc.Contains("a"))
	assert.True(t, svc.Contains("b"))

	persisted, err := store.Load()
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, "b", persisted[0].ID)
}

func TestDeleteUnknownIsNoOp(t *testing.T) {
	svc, _ := newTestService(t, &fakeFetcher{})
	svc.Add(sum("a", "a"))

	svc.Delete("missing")

	assert.True(t, svc.Contains("a"))
}

func TestGet(t *testing.T) {
	svc, _ := newTestService(t, &fakeFetcher{})
	svc.Add(sum("a", "title a"))

	got, ok := svc.Get("a")
	require.True(t, ok)
	assert.Equal(t, "title a", got.Title)

	_, ok = svc.Get("nope")
	assert.False(t, ok)
}
