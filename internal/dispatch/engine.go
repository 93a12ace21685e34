// Package dispatch runs one invocation of the batch email job: quota check,
// batch selection from the cursor, one blind-copied send, status write-back
// and cursor advancement.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mailbatch/internal/batch"
	"mailbatch/internal/cursor"
	"mailbatch/internal/email"
	"mailbatch/internal/kv"
	"mailbatch/internal/lock"
	"mailbatch/internal/quota"
	"mailbatch/internal/recipient"
	"mailbatch/internal/settings"
)

// PlainTextBody is the text/plain alternative sent with every batch.
const PlainTextBody = "body"

type sender interface {
	Send(ctx context.Context, msg email.Message) error
}

type assetLoader interface {
	Template(ctx context.Context, ref string) (string, error)
	InlineImages(ctx context.Context, images map[string]string) ([]email.InlineImage, error)
}

type schedulerControl interface {
	EnsureScheduled(ctx context.Context, handler string) error
	Unschedule(ctx context.Context, handler string) error
}

type Observer interface {
	Invocation(outcome string)
	Sent(n int)
	SendFailed()
	Cursor(value int)
	Quota(remaining int)
}

type Config struct {
	Handler          string
	From             string
	Template         string
	Advance          string
	OnQuotaExhausted string
}

type Dependencies struct {
	Store     kv.Store
	Source    recipient.Source
	Gate      quota.Gate
	Sender    sender
	Assets    assetLoader
	Scheduler schedulerControl
	Locker    lock.Locker
	Observer  Observer
}

type Engine struct {
	cfg       Config
	store     kv.Store
	cursor    *cursor.Store
	source    recipient.Source
	gate      quota.Gate
	sender    sender
	assets    assetLoader
	scheduler schedulerControl
	locker    lock.Locker
	observer  Observer
	logger    *slog.Logger
}

func NewEngine(cfg Config, deps Dependencies) *Engine {
	if cfg.Advance == "" {
		cfg.Advance = AdvanceSelected
	}
	if cfg.OnQuotaExhausted == "" {
		cfg.OnQuotaExhausted = QuotaStop
	}
	if deps.Locker == nil {
		deps.Locker = lock.NopLocker{}
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}

	return &Engine{
		cfg:       cfg,
		store:     deps.Store,
		cursor:    cursor.NewStore(deps.Store),
		source:    deps.Source,
		gate:      deps.Gate,
		sender:    deps.Sender,
		assets:    deps.Assets,
		scheduler: deps.Scheduler,
		locker:    deps.Locker,
		observer:  deps.Observer,
		logger:    slog.With("component", "dispatch"),
	}
}

// Process is the scheduler entry point; the outcome is only logged.
func (e *Engine) Process(ctx context.Context) {
	if _, err := e.Run(ctx); err != nil {
		e.logger.Error(err.Error())
	}
}

// Run executes one invocation. Only a *settings.ConfigurationError is
// returned as an error; every other failure is logged and reported through
// the outcome so the next tick can retry.
func (e *Engine) Run(ctx context.Context) (Outcome, error) {
	outcome, err := e.run(ctx)
	e.observer.Invocation(string(outcome))
	return outcome, err
}

func (e *Engine) run(ctx context.Context) (Outcome, error) {
	cfg, err := settings.Load(ctx, e.store)
	if err != nil {
		var configErr *settings.ConfigurationError
		if !errors.As(err, &configErr) {
			e.logger.Error(fmt.Sprintf("failed to load settings: %v", err))
			return OutcomeFailed, nil
		}
		if unscheduleErr := e.scheduler.Unschedule(ctx, e.cfg.Handler); unscheduleErr != nil {
			e.logger.Error(fmt.Sprintf("failed to remove trigger: %v", unscheduleErr))
		}
		return OutcomeMisconfigured, err
	}

	locked, err := e.locker.TryLock(ctx)
	if err != nil {
		e.logger.Error(fmt.Sprintf("failed to acquire job lock: %v", err))
		return OutcomeFailed, nil
	}
	if !locked {
		e.logger.Warn("another invocation is running, skipping")
		return OutcomeSkipped, nil
	}
	defer func() {
		if err := e.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
			e.logger.Error(fmt.Sprintf("failed to release job lock: %v", err))
		}
	}()

	return e.dispatch(ctx, cfg), nil
}

func (e *Engine) dispatch(ctx context.Context, cfg settings.Settings) Outcome {
	unmarked, err := e.replayUnmarked(ctx)
	if err != nil {
		e.logger.Error(err.Error())
		return OutcomeFailed
	}

	remaining, err := e.gate.Remaining(ctx)
	if err != nil {
		e.logger.Error(fmt.Sprintf("failed to read remaining quota: %v", err))
		return OutcomeFailed
	}
	e.observer.Quota(remaining)

	if remaining <= 0 {
		return e.quotaExhausted(ctx)
	}
	e.logger.Info(fmt.Sprintf("starting new batch, remaining send quota is %d", remaining))

	current, err := e.cursor.GetOrDefault(ctx)
	if err != nil {
		e.logger.Error(err.Error())
		return OutcomeFailed
	}

	rows, err := e.source.Rows(ctx)
	if err != nil {
		e.logger.Error(fmt.Sprintf("failed to read recipients: %v", err))
		return OutcomeFailed
	}

	excludeDelivered(rows, unmarked)

	total := batch.TotalEligible(rows)
	if e.pastEnd(current, total, rows) {
		return e.complete(ctx)
	}

	size := cfg.BatchSize
	if remaining < size {
		size = remaining
	}

	selected := batch.Select(rows, current, size)
	if selected.Empty() {
		return e.complete(ctx)
	}

	if err := e.send(ctx, cfg, selected); err != nil {
		e.logger.Error(fmt.Sprintf("error sending email batch to: %s: %v", strings.Join(bcc(selected), ","), err))
		e.observer.SendFailed()
		e.persistCursor(ctx, current)
		return OutcomeSendFailed
	}

	// The batch is out: the bookkeeping below must survive a shutdown.
	ctx = context.WithoutCancel(ctx)

	next := current + len(selected.Rows)
	if e.cfg.Advance == AdvanceScanned {
		next = selected.Next
	}

	if err := e.source.MarkSent(ctx, selected.Rows); err != nil {
		e.logger.Error(fmt.Sprintf("batch sent but rows not marked: %v", err))
		if err := e.saveUnmarked(ctx, append(unmarked, selected.Rows...)); err != nil {
			e.logger.Error(err.Error())
		}
	}
	e.observer.Sent(len(selected.Rows))

	if recorder, ok := e.gate.(quota.Recorder); ok {
		if err := recorder.Record(ctx, len(selected.Rows)); err != nil {
			e.logger.Error(fmt.Sprintf("failed to record sends: %v", err))
		}
	}

	e.logger.Info(fmt.Sprintf("sent email batch to: %s", strings.Join(bcc(selected), ",")))

	if e.finished(current, total, selected, rows) {
		return e.complete(ctx)
	}

	e.persistCursor(ctx, next)
	return OutcomeSent
}

// pastEnd reports whether the cursor left nothing to scan. In selected mode
// the cursor is compared with the eligible count, in scanned mode it is a row
// index.
func (e *Engine) pastEnd(current int, total int, rows []recipient.Row) bool {
	if e.cfg.Advance == AdvanceScanned {
		return current >= len(rows)
	}
	return current > total
}

func (e *Engine) finished(current int, total int, selected batch.Batch, rows []recipient.Row) bool {
	if e.cfg.Advance == AdvanceScanned {
		return selected.Next >= len(rows)
	}
	return current == total
}

func (e *Engine) send(ctx context.Context, cfg settings.Settings, selected batch.Batch) error {
	html, err := e.assets.Template(ctx, e.cfg.Template)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}

	if len(cfg.Images) == 0 {
		e.logger.Info(fmt.Sprintf(
			"no inline images configured: add a setting named <name>%s whose value is the image reference, then use <img src=\"cid:<name>%s\"> in the template",
			settings.ImageSuffix, settings.ImageSuffix,
		))
	}

	images, err := e.assets.InlineImages(ctx, cfg.Images)
	if err != nil {
		return err
	}

	return e.sender.Send(ctx, email.Message{
		From:         e.cfg.From,
		To:           cfg.TargetEmail,
		ReplyTo:      cfg.TargetEmail,
		Bcc:          bcc(selected),
		Subject:      cfg.Subject,
		HTML:         html,
		Text:         PlainTextBody,
		InlineImages: images,
	})
}

// Start validates the settings and schedules the periodic trigger.
func (e *Engine) Start(ctx context.Context) error {
	if _, err := settings.Load(ctx, e.store); err != nil {
		return err
	}
	return e.scheduler.EnsureScheduled(ctx, e.cfg.Handler)
}

// Stop cancels the job: the trigger is removed and the cursor cleared.
func (e *Engine) Stop(ctx context.Context) error {
	if err := e.scheduler.Unschedule(ctx, e.cfg.Handler); err != nil {
		return err
	}
	if err := e.cursor.Clear(ctx); err != nil {
		return err
	}
	e.observer.Cursor(0)
	return nil
}

func bcc(selected batch.Batch) []string {
	out := make([]string, 0, len(selected.Rows))
	for _, row := range selected.Rows {
		out = append(out, strings.TrimSpace(row.Address))
	}
	return out
}

func (e *Engine) quotaExhausted(ctx context.Context) Outcome {
	if e.cfg.OnQuotaExhausted == QuotaPause {
		e.logger.Info("send quota is 0, waiting for the next period")
		return OutcomeQuotaExhausted
	}

	e.logger.Info("send quota is 0, cannot send any more emails")
	e.stop(ctx)
	return OutcomeQuotaExhausted
}

func (e *Engine) complete(ctx context.Context) Outcome {
	e.logger.Info("All emails sent.")
	e.stop(ctx)
	return OutcomeCompleted
}

func (e *Engine) stop(ctx context.Context) {
	if err := e.scheduler.Unschedule(ctx, e.cfg.Handler); err != nil {
		e.logger.Error(fmt.Sprintf("failed to remove trigger: %v", err))
	}
	if err := e.cursor.Clear(ctx); err != nil {
		e.logger.Error(err.Error())
		return
	}
	e.observer.Cursor(0)
}

func (e *Engine) persistCursor(ctx context.Context, value int) {
	if err := e.cursor.Set(ctx, value); err != nil {
		e.logger.Error(err.Error())
		return
	}
	e.observer.Cursor(value)
}

type nopObserver struct{}

func (nopObserver) Invocation(string) {}
func (nopObserver) Sent(int)          {}
func (nopObserver) SendFailed()       {}
func (nopObserver) Cursor(int)        {}
func (nopObserver) Quota(int)         {}
