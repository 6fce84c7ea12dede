// Package session keeps the bounded conversation history of each chat
// session for the lifetime of the process.
package session

import (
	"strings"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"support-agent/internal/domain"
	"support-agent/internal/logger"
)

const defaultMaxTurns = 20

// Key namespaces a visitor session under its business.
func Key(businessID, sessionID string) string {
	return strings.TrimSpace(businessID) + "_" + strings.TrimSpace(sessionID)
}

// Store maps session keys to their history. Histories never expire by time.
// Concurrent appends to the same session are last-write-wins.
type Store struct {
	maxTurns int
	items    *gocache.Cache
	log      *zap.Logger
}

// NewStore creates a Store that keeps at most maxTurns turns per session.
func NewStore(maxTurns int, log *zap.Logger) *Store {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Store{
		maxTurns: maxTurns,
		items:    gocache.New(gocache.NoExpiration, 0),
		log:      logger.OrNop(log),
	}
}

// Append adds turn to the session and drops the oldest turns beyond the cap.
func (s *Store) Append(sessionKey string, turn domain.ConversationTurn) {
	history := s.Get(sessionKey)
	history = append(history, turn)
	if over := len(history) - s.maxTurns; over > 0 {
		history = history[over:]
	}
	s.items.Set(sessionKey, history, gocache.NoExpiration)
}

// Get returns a copy of the session's history, oldest first. Unknown
// sessions have an empty history.
func (s *Store) Get(sessionKey string) []domain.ConversationTurn {
	x, ok := s.items.Get(sessionKey)
	if !ok {
		return []domain.ConversationTurn{}
	}
	stored := x.([]domain.ConversationTurn)
	out := make([]domain.ConversationTurn, len(stored), len(stored)+1)
	copy(out, stored)
	return out
}

// Exists reports whether the session has any history.
func (s *Store) Exists(sessionKey string) bool {
	_, ok := s.items.Get(sessionKey)
	return ok
}

// Clear forgets one session.
func (s *Store) Clear(sessionKey string) {
	s.items.Delete(sessionKey)
	s.log.Debug("session cleared", zap.String("session_key", sessionKey))
}

// ClearAll forgets every session.
func (s *Store) ClearAll() {
	n := s.items.ItemCount()
	s.items.Flush()
	s.log.Info("sessions cleared", zap.Int("count", n))
}

// Len reports the number of active sessions.
func (s *Store) Len() int {
	return s.items.ItemCount()
}

// MaxTurns is the per-session history cap.
func (s *Store) MaxTurns() int {
	return s.maxTurns
}
