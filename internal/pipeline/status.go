package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

const statusTTL = time.Hour

// ProcessingStatus is the pollable, ephemeral per-conversation progress
// record. It is overwritten whole on every stage transition, so a
// concurrent reader sees either the previous record or the new one, never
// a torn mix.
type ProcessingStatus struct {
	Step      string    `json:"current_step"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusBoard keeps one status record per conversation, expiring with the
// conversation rather than persisting.
type StatusBoard struct {
	cache *ttlcache.Cache[uuid.UUID, ProcessingStatus]
}

func NewStatusBoard() *StatusBoard {
	cache := ttlcache.New[uuid.UUID, ProcessingStatus](
		ttlcache.WithTTL[uuid.UUID, ProcessingStatus](statusTTL),
	)
	go cache.Start()
	return &StatusBoard{cache: cache}
}

// Set overwrites the record for a conversation (last write wins).
func (b *StatusBoard) Set(id uuid.UUID, step string, progress float64, message string) {
	b.cache.Set(id, ProcessingStatus{
		Step:      step,
		Progress:  progress,
		Message:   message,
		UpdatedAt: time.Now(),
	}, ttlcache.DefaultTTL)
}

// Get returns the current record, if any.
func (b *StatusBoard) Get(id uuid.UUID) (ProcessingStatus, bool) {
	item := b.cache.Get(id)
	if item == nil {
		return ProcessingStatus{}, false
	}
	return item.Value(), true
}

// Close stops the expiry loop.
func (b *StatusBoard) Close() { b.cache.Stop() }
