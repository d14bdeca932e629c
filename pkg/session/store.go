// Package session owns all conversation state. The store is the only holder
// of Session objects; turn processing borrows a session through Acquire and
// must release it before the store will consider it for eviction.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/parleyhq/parley/pkg/eventbus"
	"github.com/parleyhq/parley/pkg/events"
	"github.com/parleyhq/parley/pkg/models"
	"github.com/robfig/cron/v3"
)

const (
	defaultMaxSessions   = 100
	defaultIdleTimeout   = 30 * time.Minute
	defaultSweepSchedule = "@every 5m"
	activityWindow       = 5 * time.Minute
)

// Config bounds the store.
type Config struct {
	MaxSessions   int
	IdleTimeout   time.Duration
	SweepSchedule string
}

func (c Config) withDefaults() Config {
	if c.MaxSessions <= 0 {
		c.MaxSessions = defaultMaxSessions
	}

	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}

	if c.SweepSchedule == "" {
		c.SweepSchedule = defaultSweepSchedule
	}

	return c
}

type entry struct {
	session *models.Session

	// turnMu serializes turns for one session: a message arriving while a
	// previous one is still processing queues behind it.
	turnMu sync.Mutex

	// refs counts borrowers. An entry with refs > 0 is never evicted.
	refs int
}

// Stats summarizes the store for the management API.
type Stats struct {
	TotalSessions   int     `json:"total_sessions"`
	ActiveSessions  int     `json:"active_sessions"`
	TotalMessages   int     `json:"total_messages"`
	AverageMessages float64 `json:"average_messages"`
}

// Store is a capacity-bounded, idle-evicting session store. All bookkeeping
// is guarded by a single mutex; per-session exclusivity is provided by the
// per-entry turn lock.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*entry
	config    Config
	logger    *slog.Logger
	publisher eventbus.EventPublisher
	sweeper   *cron.Cron
}

func NewStore(config Config, publisher eventbus.EventPublisher, logger *slog.Logger) *Store {
	return &Store{
		sessions:  make(map[string]*entry),
		config:    config.withDefaults(),
		logger:    logger.With("module", "session_store"),
		publisher: publisher,
	}
}

// Create registers a new session, evicting the least-recently-active
// sessions first if the store is at capacity.
func (s *Store) Create(id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	if len(s.sessions) >= s.config.MaxSessions {
		s.evictOldestLocked(len(s.sessions) - s.config.MaxSessions + 1)
	}

	session := models.NewSession(id)
	s.sessions[id] = &entry{session: session}

	s.logger.Info("Session created", "session_id", id, "total", len(s.sessions))
	s.publish(events.SessionCreated{BaseEvent: events.NewBase(events.SessionCreatedEvent, id)})

	return session, nil
}

// Get returns the session and refreshes its activity timestamp. The returned
// session must not be mutated without Acquire.
func (s *Store) Get(id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	e.session.LastActivity = time.Now()

	return e.session, nil
}

// Acquire borrows a session for exclusive turn processing. It blocks until
// any in-flight turn for the same session completes. The returned release
// function must be called exactly once; until then the session cannot be
// evicted. Acquire fails if the session was deleted while waiting, so a late
// borrower can never resurrect a removed session.
func (s *Store) Acquire(id string) (*models.Session, func(), error) {
	s.mu.Lock()

	e, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()

		return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	e.refs++
	s.mu.Unlock()

	e.turnMu.Lock()

	s.mu.Lock()
	current, ok := s.sessions[id]

	if !ok || current != e {
		e.refs--
		s.mu.Unlock()
		e.turnMu.Unlock()

		return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	e.session.LastActivity = time.Now()
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		e.refs--
		e.session.LastActivity = time.Now()
		s.mu.Unlock()
		e.turnMu.Unlock()
	}

	return e.session, release, nil
}

// Delete removes a session. A turn currently borrowing it finishes against
// the detached object; its effects are discarded with it.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()

	_, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}

	s.mu.Unlock()

	if ok {
		s.logger.Info("Session deleted", "session_id", id)
		s.publish(events.SessionDeleted{BaseEvent: events.NewBase(events.SessionDeletedEvent, id)})
	}

	return ok
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// IDs returns all stored session ids.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}

	return ids
}

// Stats summarizes the current store contents.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{TotalSessions: len(s.sessions)}
	now := time.Now()

	for _, e := range s.sessions {
		if now.Sub(e.session.LastActivity) < activityWindow {
			stats.ActiveSessions++
		}

		stats.TotalMessages += len(e.session.MessageHistory)
	}

	if stats.TotalSessions > 0 {
		stats.AverageMessages = float64(stats.TotalMessages) / float64(stats.TotalSessions)
	}

	return stats
}

// Sweep evicts sessions idle beyond the configured timeout. It is safe to
// run concurrently with request traffic; borrowed sessions are skipped.
func (s *Store) Sweep() int {
	s.mu.Lock()

	now := time.Now()
	evicted := make([]string, 0)

	for id, e := range s.sessions {
		if e.refs > 0 {
			continue
		}

		if now.Sub(e.session.LastActivity) > s.config.IdleTimeout {
			e.session.Status = models.SessionStatusEvicted
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}

	s.mu.Unlock()

	for _, id := range evicted {
		s.publish(events.SessionEvicted{
			BaseEvent: events.NewBase(events.SessionEvictedEvent, id),
			Reason:    "idle",
		})
	}

	if len(evicted) > 0 {
		s.logger.Info("Swept idle sessions", "evicted", len(evicted))
	}

	return len(evicted)
}

// StartSweeper schedules periodic idle sweeps. Stop with StopSweeper.
func (s *Store) StartSweeper() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sweeper != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.config.SweepSchedule, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.config.SweepSchedule, err)
	}

	c.Start()
	s.sweeper = c
	s.logger.Info("Idle sweeper started", "schedule", s.config.SweepSchedule)

	return nil
}

// StopSweeper stops the periodic sweep and waits for a running sweep to end.
func (s *Store) StopSweeper() {
	s.mu.Lock()
	sweeper := s.sweeper
	s.sweeper = nil
	s.mu.Unlock()

	if sweeper != nil {
		<-sweeper.Stop().Done()
	}
}

// evictOldestLocked removes up to count least-recently-active unborrowed
// sessions. Caller holds s.mu.
func (s *Store) evictOldestLocked(count int) {
	type candidate struct {
		id           string
		lastActivity time.Time
	}

	candidates := make([]candidate, 0, len(s.sessions))

	for id, e := range s.sessions {
		if e.refs > 0 {
			continue
		}

		candidates = append(candidates, candidate{id: id, lastActivity: e.session.LastActivity})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastActivity.Before(candidates[j].lastActivity)
	})

	if count > len(candidates) {
		count = len(candidates)
	}

	for _, c := range candidates[:count] {
		e := s.sessions[c.id]
		e.session.Status = models.SessionStatusEvicted
		delete(s.sessions, c.id)
		s.logger.Info("Session evicted", "session_id", c.id, "reason", "capacity")
		s.publish(events.SessionEvicted{
			BaseEvent: events.NewBase(events.SessionEvictedEvent, c.id),
			Reason:    "capacity",
		})
	}
}

func (s *Store) publish(event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(context.Background(), string(event.GetType()), event); err != nil {
		s.logger.Warn("Failed to publish session event", "event", event.GetType(), "error", err)
	}
}
