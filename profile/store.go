package profile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/quailyquaily/telegramdock/inbound"
	"github.com/quailyquaily/telegramdock/internal/snapshot"
)

var ErrPersist = errors.New("profile: persist failed")

// Store owns the profile map. The in-memory map is authoritative; every
// mutation is followed by a full snapshot write performed under the same
// lock, so snapshots are written in mutation order.
type Store struct {
	mu        sync.Mutex
	profiles  map[int64]Profile
	persister snapshot.Persister[Snapshot]
}

func NewStore(persister snapshot.Persister[Snapshot]) *Store {
	if persister == nil {
		persister = snapshot.NewMemory[Snapshot]()
	}
	return &Store{
		profiles:  map[int64]Profile{},
		persister: persister,
	}
}

// Load replaces the in-memory state with the persisted snapshot. Entries
// whose key does not match their user_id are keyed by the user_id.
func (s *Store) Load(ctx context.Context) error {
	snap, ok, err := s.persister.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = make(map[int64]Profile, len(snap))
	if !ok {
		return nil
	}
	for key, p := range snap {
		if p.UserID == 0 {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				continue
			}
			p.UserID = id
		}
		s.profiles[p.UserID] = p
	}
	return nil
}

// Touch records one inbound event from sender observed at at. It creates
// the profile on first sight, refreshes identity fields, advances
// last_seen (never backwards) and increments message_count by one.
//
// The returned profile reflects the update even when persisting the
// snapshot failed; the error then wraps ErrPersist.
func (s *Store) Touch(ctx context.Context, sender inbound.Sender, at time.Time) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.profiles[sender.ID]
	next := Profile{
		UserID:       sender.ID,
		Username:     sender.Username,
		FirstName:    sender.FirstName,
		LastName:     sender.LastName,
		LanguageCode: sender.LanguageCode,
		LastSeen:     prev.LastSeen,
		MessageCount: prev.MessageCount + 1,
	}
	if at.After(prev.LastSeen.Time) {
		next.LastSeen = snapshot.At(at)
	}
	s.profiles[sender.ID] = next

	if err := s.persister.Save(ctx, s.snapshotLocked()); err != nil {
		return next, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return next, nil
}

func (s *Store) Get(userID int64) (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	return p, ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}

func (s *Store) snapshotLocked() Snapshot {
	out := make(Snapshot, len(s.profiles))
	for id, p := range s.profiles {
		out[snapshotKey(id)] = p
	}
	return out
}
