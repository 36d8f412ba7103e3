// Package cron runs the agent on a schedule: each entry feeds a fixed
// prompt through the agent loop, optionally on a cheaper backend tier.
package cron

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Athemis/squidbot/pkg/providers"
)

// RunFunc executes one scheduled invocation and returns the reply.
type RunFunc func(ctx context.Context, entry Entry) (string, error)

// Entry is one scheduled invocation. A nil Pool means the agent's default
// backends.
type Entry struct {
	ID       string
	Name     string
	Schedule string
	Prompt   string
	Pool     *providers.Pool
}

// Service wraps a cron scheduler around the agent loop. A propagated
// backend failure is logged and that cycle skipped; the schedule keeps
// running.
type Service struct {
	scheduler *cron.Cron
	run       RunFunc
	logger    zerolog.Logger

	mu      sync.Mutex
	entries map[string]Entry
	ids     map[string]cron.EntryID
}

// NewService creates a stopped cron service.
func NewService(run RunFunc, logger zerolog.Logger) (*Service, error) {
	if run == nil {
		return nil, fmt.Errorf("run function is required")
	}

	return &Service{
		scheduler: cron.New(),
		run:       run,
		logger:    logger.With().Str("component", "cron").Logger(),
		entries:   make(map[string]Entry),
		ids:       make(map[string]cron.EntryID),
	}, nil
}

// Add registers a scheduled prompt. The schedule uses standard five-field
// cron syntax; invalid schedules are rejected here, before anything runs.
// A non-nil pool pins this entry's invocations to those backends.
func (s *Service) Add(name, schedule, prompt string, pool *providers.Pool) (Entry, error) {
	if name == "" {
		return Entry{}, fmt.Errorf("entry name is required")
	}
	if prompt == "" {
		return Entry{}, fmt.Errorf("prompt is required")
	}

	entry := Entry{
		ID:       uuid.New().String(),
		Name:     name,
		Schedule: schedule,
		Prompt:   prompt,
		Pool:     pool,
	}

	cronID, err := s.scheduler.AddFunc(schedule, func() {
		s.fire(entry)
	})
	if err != nil {
		return Entry{}, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.ids[entry.ID] = cronID
	s.mu.Unlock()

	s.logger.Info().Str("name", name).Str("schedule", schedule).Msg("Cron entry added")
	return entry, nil
}

// Remove drops a scheduled entry by id.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cronID, ok := s.ids[id]
	if !ok {
		return fmt.Errorf("unknown entry: %s", id)
	}
	s.scheduler.Remove(cronID)
	delete(s.ids, id)
	delete(s.entries, id)
	return nil
}

// Entries returns the registered entries.
func (s *Service) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

// Start begins firing schedules.
func (s *Service) Start() {
	s.scheduler.Start()
	s.logger.Info().Int("entries", len(s.entries)).Msg("Cron service started")
}

// Stop halts scheduling and waits for running invocations.
func (s *Service) Stop() {
	<-s.scheduler.Stop().Done()
	s.logger.Info().Msg("Cron service stopped")
}

func (s *Service) fire(entry Entry) {
	s.logger.Debug().Str("name", entry.Name).Msg("Cron entry firing")

	if _, err := s.run(context.Background(), entry); err != nil {
		s.logger.Error().Str("name", entry.Name).Err(err).Msg("Cron cycle failed, skipping")
		return
	}
	s.logger.Debug().Str("name", entry.Name).Msg("Cron cycle completed")
}
