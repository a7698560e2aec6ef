package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	metaLastRun      = "schedule.last_run"
	metaIntervalDays = "schedule.interval_days"
)

// ScheduleState is the persisted state of the background re-scrape.
type ScheduleState struct {
	LastRun      time.Time // zero if it never ran
	IntervalDays int
}

// LoadScheduleState reads the scheduler state. Missing keys yield zero values.
func (s *Store) LoadScheduleState(ctx context.Context) (ScheduleState, error) {
	var state ScheduleState

	lastRun, err := s.getMeta(ctx, metaLastRun)
	if err != nil {
		return state, err
	}
	if lastRun != "" {
		if state.LastRun, err = time.Parse(time.RFC3339Nano, lastRun); err != nil {
			return state, fmt.Errorf("parsing %s: %w", metaLastRun, err)
		}
	}

	interval, err := s.getMeta(ctx, metaIntervalDays)
	if err != nil {
		return state, err
	}
	if interval != "" {
		if state.IntervalDays, err = strconv.Atoi(interval); err != nil {
			return state, fmt.Errorf("parsing %s: %w", metaIntervalDays, err)
		}
	}
	return state, nil
}

// SaveScheduleState writes the scheduler state.
func (s *Store) SaveScheduleState(ctx context.Context, state ScheduleState) error {
	return s.Within(ctx, func(tx *Tx) error {
		lastRun := ""
		if !state.LastRun.IsZero() {
			lastRun = state.LastRun.UTC().Format(time.RFC3339Nano)
		}
		if err := tx.setMeta(ctx, metaLastRun, lastRun); err != nil {
			return err
		}
		return tx.setMeta(ctx, metaIntervalDays, strconv.Itoa(state.IntervalDays))
	})
}

func (s *Store) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}

func (t *Tx) setMeta(ctx context.Context, key, value string) error {
	_, err := t.tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
