package history

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/verdantlabs/chatlink/internal/logging"
	"github.com/verdantlabs/chatlink/internal/monitoring"
)

// Fetcher is the remote side of history. *Client satisfies it.
type Fetcher interface {
	Sessions(ctx context.Context) ([]Summary, error)
	Messages(ctx context.Context, sessionID string) ([]Exchange, error)
}

// Service owns the in-memory merged history list and keeps the local store
// in sync with it.
type Service struct {
	store   *Store
	remote  Fetcher
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu        sync.Mutex
	summaries []Summary
}

// NewService creates the history service. The local store is read once at
// startup; subsequent writes happen only on summary creation and deletion.
func NewService(store *Store, remote Fetcher, log *logging.Logger, metrics *monitoring.Metrics) *Service {
	s := &Service{
		store:   store,
		remote:  remote,
		log:     log,
		metrics: metrics,
	}

	cached, err := store.Load()
	if err != nil {
		log.Warn("failed to load local history", zap.Error(err))
	}
	s.summaries = cached
	return s
}

// Refresh merges the local cache with a fresh server fetch. A failed fetch
// degrades to local entries only and is reported via log and metrics, never
// as an error to the caller.
func (s *Service) Refresh(ctx context.Context) []Summary {
	var server []Summary
	if s.remote != nil {
		fetched, err := s.remote.Sessions(ctx)
		if err != nil {
			s.log.Warn("history fetch failed, using local entries only", zap.Error(err))
		} else {
			server = fetched
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries = Merge(s.summaries, server)
	s.metrics.IncHistoryMerges()
	return s.snapshotLocked()
}

// List returns a copy of the current merged history.
func (s *Service) List() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Get returns the summary with the given identifier.
func (s *Service) Get(id string) (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sum := range s.summaries {
		if sum.ID == id {
			return sum, true
		}
	}
	return Summary{}, false
}

// Contains reports whether a summary with the given identifier exists.
func (s *Service) Contains(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Add inserts a newly synthesized summary at the front of the list and
// persists. Adding an identifier that already exists is a no-op, which
// makes summary synthesis idempotent per session.
func (s *Service) Add(sum Summary) {
	s.mu.Lock()
	for _, existing := range s.summaries {
		if existing.ID == sum.ID {
			s.mu.Unlock()
			return
		}
	}
	s.summaries = append([]Summary{sum}, s.summaries...)
	list := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(list)
}

// Delete removes a summary and persists the updated list. Deleting an
// unknown identifier is a no-op.
func (s *Service) Delete(id string) {
	s.mu.Lock()
	kept := s.summaries[:0]
	for _, sum := range s.summaries {
		if sum.ID != id {
			kept = append(kept, sum)
		}
	}
	s.summaries = kept
	list := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(list)
}

// Messages fetches a session's recorded exchanges from the server.
func (s *Service) Messages(ctx context.Context, sessionID string) ([]Exchange, error) {
	if s.remote == nil {
		return nil, nil
	}
	return s.remote.Messages(ctx, sessionID)
}

func (s *Service) persist(list []Summary) {
	if err := s.store.Save(list); err != nil {
		s.log.Error("failed to persist history", zap.Error(err))
	}
}

func (s *Service) snapshotLocked() []Summary {
	out := make([]Summary, len(s.summaries))
	copy(out, s.summaries)
	return out
}
