// Package memory is an in-process credential store used for local runs and
// engine tests. It mirrors the constraints of the postgres schema.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/model"
)

// ErrConstraint mirrors a violated partial unique index.
var ErrConstraint = errors.New("unique constraint violated")

var _ model.Transactor = (*Store)(nil)

type linkKey struct {
	provider string
	subject  string
}

type tables struct {
	nextUserID    int64
	users         map[int64]model.User
	refreshTokens map[uuid.UUID]model.RefreshToken
	sessions      map[uuid.UUID]model.Session
	oneTime       map[uuid.UUID]model.OneTimeToken
	links         map[linkKey]model.OAuthLink
}

func newTables() *tables {
	return &tables{
		users:         make(map[int64]model.User),
		refreshTokens: make(map[uuid.UUID]model.RefreshToken),
		sessions:      make(map[uuid.UUID]model.Session),
		oneTime:       make(map[uuid.UUID]model.OneTimeToken),
		links:         make(map[linkKey]model.OAuthLink),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	c.nextUserID = t.nextUserID
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.refreshTokens {
		c.refreshTokens[k] = v
	}
	for k, v := range t.sessions {
		c.sessions[k] = v
	}
	for k, v := range t.oneTime {
		c.oneTime[k] = v
	}
	for k, v := range t.links {
		c.links[k] = v
	}
	return c
}

type txKey struct{}

// Store keeps all tables behind one lock. Transactions are serialized and
// roll back by restoring a snapshot.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data *tables
	now  func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		data: newTables(),
		now:  time.Now,
	}
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// lock takes the store lock. Calls outside a transaction also wait for any
// running transaction so they never observe or clobber its uncommitted state.
func (s *Store) lock(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.inTx(ctx) {
		s.mu.Lock()
		return s.mu.Unlock, nil
	}

	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}, nil
}

// WithinTx runs fn atomically against the store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s))
}

func (s *Store) restore(snapshot *tables) {
	s.mu.Lock()
	s.data = snapshot
	s.mu.Unlock()
}

// Ping reports the store as healthy.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Users() *UserRepository {
	return &UserRepository{s: s}
}

func (s *Store) RefreshTokens() *RefreshTokenRepository {
	return &RefreshTokenRepository{s: s}
}

func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{s: s}
}

func (s *Store) OneTimeTokens() *OneTimeTokenRepository {
	return &OneTimeTokenRepository{s: s}
}

func (s *Store) OAuthLinks() *OAuthLinkRepository {
	return &OAuthLinkRepository{s: s}
}
