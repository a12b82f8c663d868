package baseline

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by a Transport when no snapshot exists for a branch.
var ErrNotFound = errors.New("baseline snapshot not found")

// Transport moves serialised snapshots to and from durable storage.
type Transport interface {
	// Fetch returns the most recent snapshot persisted for branch.
	Fetch(ctx context.Context, branch string) ([]byte, error)
	// Store persists a snapshot produced on branch.
	Store(ctx context.Context, branch string, data []byte) error
}

// Store loads the reference branch baseline and persists the current run's values.
// Neither operation fails: errors are logged and degrade to an empty snapshot
// or a skipped write.
type Store struct {
	transport     Transport
	referenceRef  string
	currentBranch string
	log           logrus.FieldLogger

	mu    sync.Mutex
	saved bool
}

// NewStore creates a baseline store reading from referenceBranch and writing
// snapshots tagged with currentBranch.
func NewStore(log logrus.FieldLogger, transport Transport, referenceBranch, currentBranch string) *Store {
	return &Store{
		transport:     transport,
		referenceRef:  referenceBranch,
		currentBranch: currentBranch,
		log:           log.WithField("component", "baseline_store"),
	}
}

// Load returns the latest snapshot of the reference branch, or an empty
// snapshot when none can be retrieved.
func (s *Store) Load(ctx context.Context) Snapshot {
	log := s.log.WithField("branch", s.referenceRef)

	data, err := s.transport.Fetch(ctx, s.referenceRef)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Info("no baseline found, comparisons will be skipped")
		} else {
			log.WithError(err).Warn("failed to fetch baseline, comparisons will be skipped")
		}

		return Snapshot{}
	}

	snapshot, err := Decode(data)
	if err != nil {
		log.WithError(err).Warn("failed to decode baseline, comparisons will be skipped")

		return Snapshot{}
	}

	log.WithField("metrics", len(snapshot)).Info("loaded baseline")

	return snapshot
}

// Save persists snapshot. Only the first call per Store writes; failures are
// logged and swallowed.
func (s *Store) Save(ctx context.Context, snapshot Snapshot) {
	s.mu.Lock()
	if s.saved {
		s.mu.Unlock()
		s.log.Warn("baseline already saved for this run, ignoring")

		return
	}
	s.saved = true
	s.mu.Unlock()

	data, err := Encode(snapshot)
	if err != nil {
		s.log.WithError(err).Error("failed to encode baseline")

		return
	}

	if err := s.transport.Store(ctx, s.currentBranch, data); err != nil {
		s.log.WithError(err).Error("failed to store baseline")

		return
	}

	s.log.WithFields(logrus.Fields{
		"branch":  s.currentBranch,
		"metrics": len(snapshot),
	}).Info("stored baseline")
}
