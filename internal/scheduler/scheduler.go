// Package scheduler keeps the periodic trigger of a job. Triggers are
// persisted in the kv store so that any process can start or stop a job and
// the daemon picks the change up on its next Reconcile.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mailbatch/internal/kv"
)

const (
	keyPrefix       = "trigger:"
	DefaultInterval = time.Minute
)

type Job func(ctx context.Context)

type Config struct {
	Interval time.Duration
	Timezone string
}

type entry struct {
	id   cron.EntryID
	spec string
}

type Service struct {
	mu sync.Mutex

	log    *slog.Logger
	store  kv.Store
	spec   string
	parser cron.Parser
	c      *cron.Cron

	jobs    map[string]Job
	entries map[string]entry

	runCtx  context.Context
	started bool
}

func New(cfg Config, store kv.Store) (*Service, error) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	log := slog.With("component", "scheduler")
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelWarn))

	return &Service{
		log:    log,
		store:  store,
		spec:   "@every " + interval.String(),
		parser: parser,
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		jobs:    map[string]Job{},
		entries: map[string]entry{},
		runCtx:  context.Background(),
	}, nil
}

// Register binds a handler name to the function its trigger runs. Only
// registered handlers get cron entries in this process.
func (s *Service) Register(handler string, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[handler] = job
}

// EnsureScheduled creates the trigger for handler unless one already exists.
func (s *Service) EnsureScheduled(ctx context.Context, handler string) error {
	spec, err := s.store.Get(ctx, keyPrefix+handler)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		spec = s.spec
		if err := s.store.Set(ctx, keyPrefix+handler, spec); err != nil {
			return fmt.Errorf("failed to persist trigger %s: %w", handler, err)
		}
		s.log.Info(fmt.Sprintf("trigger %s created (%s)", handler, spec))
	case err != nil:
		return fmt.Errorf("failed to read trigger %s: %w", handler, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncLocked(handler, spec, true)
}

// Unschedule removes every registration of handler. Removing a missing
// trigger is not an error.
func (s *Service) Unschedule(ctx context.Context, handler string) error {
	if err := s.store.Delete(ctx, keyPrefix+handler); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("failed to delete trigger %s: %w", handler, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[handler]; ok {
		s.log.Info(fmt.Sprintf("trigger %s removed", handler))
	}
	return s.syncLocked(handler, "", false)
}

func (s *Service) IsScheduled(ctx context.Context, handler string) (bool, error) {
	_, err := s.store.Get(ctx, keyPrefix+handler)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read trigger %s: %w", handler, err)
	}
	return true, nil
}

// Reconcile aligns the local cron entries with the persisted triggers.
func (s *Service) Reconcile(ctx context.Context) error {
	triggers, err := s.store.List(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("failed to list triggers: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	handlers := make([]string, 0, len(s.jobs))
	for handler := range s.jobs {
		handlers = append(handlers, handler)
	}
	sort.Strings(handlers)

	var errs []error
	for _, handler := range handlers {
		spec, ok := triggers[keyPrefix+handler]
		if err := s.syncLocked(handler, spec, ok); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Active returns the handlers that currently have a local cron entry.
func (s *Service) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.entries))
	for handler := range s.entries {
		out = append(out, handler)
	}
	sort.Strings(out)
	return out
}

// Start runs the cron loop; jobs receive ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.runCtx = ctx
	s.c.Start()
	s.log.Info("scheduler started")
}

// Stop halts the cron loop and waits for running jobs.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.c.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Service) syncLocked(handler string, spec string, scheduled bool) error {
	current, exists := s.entries[handler]

	if !scheduled {
		if exists {
			s.c.Remove(current.id)
			delete(s.entries, handler)
		}
		return nil
	}

	if exists && current.spec == spec {
		return nil
	}

	job, ok := s.jobs[handler]
	if !ok {
		return nil
	}

	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("invalid trigger spec %q for %s: %w", spec, handler, err)
	}

	if exists {
		s.c.Remove(current.id)
	}
	id := s.c.Schedule(schedule, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		job(ctx)
	}))
	s.entries[handler] = entry{id: id, spec: spec}
	return nil
}
