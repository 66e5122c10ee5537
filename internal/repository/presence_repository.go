package repository

import (
	"cmp"
	"slices"
	"sync"

	"room-chat/internal/models"

	"github.com/samber/lo"
)

// PresenceRepository is the authoritative set of named participants,
// keyed by connection identity.
type PresenceRepository interface {
	// Register inserts or overwrites the participant of a connection
	Register(p models.Participant) (previous models.Participant, replaced bool)
	// Unregister removes the participant of a connection, if any
	Unregister(connectionID string) (models.Participant, bool)
	Get(connectionID string) (models.Participant, bool)
	// Snapshot returns a copy of the registry in join order
	Snapshot() []models.Participant
	Count() int
}

type presenceEntry struct {
	participant models.Participant
	seq         uint64
}

type presenceRepository struct {
	mu           sync.RWMutex
	participants map[string]presenceEntry
	nextSeq      uint64
}

func NewPresenceRepository() *presenceRepository {
	return &presenceRepository{participants: make(map[string]presenceEntry)}
}

// Register keeps the original join position when a connection renames itself
func (r *presenceRepository) Register(p models.Participant) (models.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, replaced := r.participants[p.ID]
	if replaced {
		r.participants[p.ID] = presenceEntry{participant: p, seq: previous.seq}
		return previous.participant, true
	}

	r.nextSeq++
	r.participants[p.ID] = presenceEntry{participant: p, seq: r.nextSeq}
	return models.Participant{}, false
}

func (r *presenceRepository) Unregister(connectionID string) (models.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.participants[connectionID]
	if ok {
		delete(r.participants, connectionID)
	}
	return e.participant, ok
}

func (r *presenceRepository) Get(connectionID string) (models.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.participants[connectionID]
	return e.participant, ok
}

func (r *presenceRepository) Snapshot() []models.Participant {
	r.mu.RLock()
	entries := lo.Values(r.participants)
	r.mu.RUnlock()

	slices.SortFunc(entries, func(a, b presenceEntry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return lo.Map(entries, func(e presenceEntry, _ int) models.Participant {
		return e.participant
	})
}

func (r *presenceRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}
