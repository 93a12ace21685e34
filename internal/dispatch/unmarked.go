package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mailbatch/internal/kv"
	"mailbatch/internal/recipient"
)

// unmarkedKey holds the rows of delivered batches whose status write-back
// failed. They are never selected again and their write-back is retried on
// every invocation until it succeeds.
const unmarkedKey = "unmarked"

func (e *Engine) loadUnmarked(ctx context.Context) ([]recipient.Row, error) {
	raw, err := e.store.Get(ctx, unmarkedKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read unmarked rows: %w", err)
	}

	var rows []recipient.Row
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("failed to decode unmarked rows: %w", err)
	}
	return rows, nil
}

func (e *Engine) saveUnmarked(ctx context.Context, rows []recipient.Row) error {
	if len(rows) == 0 {
		if err := e.store.Delete(ctx, unmarkedKey); err != nil && !errors.Is(err, kv.ErrNotFound) {
			return fmt.Errorf("failed to clear unmarked rows: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode unmarked rows: %w", err)
	}
	if err := e.store.Set(ctx, unmarkedKey, string(raw)); err != nil {
		return fmt.Errorf("failed to write unmarked rows: %w", err)
	}
	return nil
}

// replayUnmarked retries the write-back of delivered rows and returns the
// ones that are still unmarked.
func (e *Engine) replayUnmarked(ctx context.Context) ([]recipient.Row, error) {
	rows, err := e.loadUnmarked(ctx)
	if err != nil || len(rows) == 0 {
		return rows, err
	}

	if err := e.source.MarkSent(ctx, rows); err != nil {
		e.logger.Warn(fmt.Sprintf("delivered rows still not marked: %v", err))
		return rows, nil
	}
	e.logger.Info(fmt.Sprintf("marked %d previously delivered rows as sent", len(rows)))

	if err := e.saveUnmarked(context.WithoutCancel(ctx), nil); err != nil {
		e.logger.Error(err.Error())
	}
	return nil, nil
}

// excludeDelivered flags delivered rows as sent so selection skips them.
func excludeDelivered(rows []recipient.Row, delivered []recipient.Row) {
	if len(delivered) == 0 {
		return
	}

	indexes := make(map[int]bool, len(delivered))
	for _, row := range delivered {
		indexes[row.Index] = true
	}
	for i := range rows {
		if indexes[rows[i].Index] {
			rows[i].Status = recipient.SentStatus
		}
	}
}
