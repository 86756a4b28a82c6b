// Package mistake holds the report, vote, moderation and AI tool operations.
// Every operation takes the caller's Principal explicitly; authorization of
// staff-only actions happens before these calls are made.
package mistake

import (
	"context"
	"time"

	"ai-mistake-tracker/pkg/apperr"
	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Emitter receives domain events. Emission is best effort: implementations
// log delivery failures and never block the write that produced the event.
type Emitter interface {
	Emit(ctx context.Context, e models.Event)
}

// Sealer encrypts values that must be stored but never shown, such as the
// identity behind an anonymous report. Tag is a deterministic keyed hash of
// the same value, used to find sealed reports again.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(ciphertext string) (string, error)
	Tag(plaintext string) string
}

// Cache stores rendered analytics. A miss returns (nil, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// UserCounter exposes the user population for dashboards.
type UserCounter interface {
	CountUsers(ctx context.Context, since time.Time) (int64, error)
}

// Leaderboard returns the most active contributors, ordered by reports
// submitted and then by votes cast.
type Leaderboard interface {
	MostActive(ctx context.Context, limit int) ([]ActiveUser, error)
}

type Service struct {
	store    store.Store
	emitter  Emitter
	sealer   Sealer
	cache    Cache
	cacheTTL time.Duration
	users    UserCounter
	leaders  Leaderboard
	now      func() time.Time
	log      *zap.Logger
}

type Option func(*Service)

func WithEmitter(e Emitter) Option { return func(s *Service) { s.emitter = e } }

func WithSealer(sl Sealer) Option { return func(s *Service) { s.sealer = sl } }

func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithUserCounter(u UserCounter) Option { return func(s *Service) { s.users = u } }

func WithLeaderboard(l Leaderboard) Option { return func(s *Service) { s.leaders = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(ctx context.Context, e models.Event) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(ctx, e)
}

// ParseID turns a hex id into an ObjectID. Ids that cannot exist are
// reported as not found.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperr.NotFound("no document with id %q", id)
	}
	return oid, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
