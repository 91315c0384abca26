package completion

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/eventlog"
	"github.com/toltec-astro/tolteca-catalog/internal/identity"
	"github.com/toltec-astro/tolteca-catalog/internal/logging"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

// Checker is the subset of catalog.Store the detector needs to
// suppress a completion event for a quartet that already has a
// dp_raw_obs product — the registry poll runs independently of
// ingest, so the two can observe the same quartet in either order.
type Checker interface {
	FindRawObsByQuartet(ctx context.Context, master string, obsnum, subobsnum, scannum int) (model.DataProduct, error)
}

// Config mirrors the config package's detector-relevant keys, kept as
// a narrow local type so this package does not import config.
type Config struct {
	ValidationTimeout  time.Duration
	MaxInterfaceCount  int
	DisabledInterfaces map[int]bool
	BatchSize          int
}

// Detector polls a Registry for per-interface validity rows, tracks
// per-quartet validation state across ticks, and emits a
// CompletionEvent the first time a quartet is judged complete by any
// of the all-expected, quiescence-timeout, or newer-quartet-signal
// rules.
type Detector struct {
	registry Registry
	checker  Checker
	cursors  CursorStore
	events   *eventlog.Logger
	cfg      Config
	zl       *zap.Logger
	now      func() time.Time
}

// New builds a Detector. cfg.BatchSize falls back to 50 when unset,
// matching the documented per-tick work cap.
func New(registry Registry, checker Checker, cursors CursorStore, events *eventlog.Logger, cfg Config) *Detector {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Detector{
		registry: registry,
		checker:  checker,
		cursors:  cursors,
		events:   events,
		cfg:      cfg,
		zl:       logging.Get(logging.ComponentCompletion),
		now:      time.Now,
	}
}

type quartetAgg struct {
	key        string
	master     string
	obsnum     int
	subobsnum  int
	scannum    int
	interfaces map[int]bool // roach index -> latest observed Valid flag
	timestamp  time.Time    // first-seen row's timestamp for this tick
}

// Tick performs one poll-and-evaluate cycle: it fetches every
// registry row since the persisted cursor, folds them into
// per-quartet aggregates, updates the validation tracker, and returns
// the completion events for quartets judged complete this tick (after
// duplicate suppression). The cursor is saved only when the poll
// returned rows; an empty poll or an error returns without saving it.
func (d *Detector) Tick(ctx context.Context) ([]CompletionEvent, error) {
	cursor, err := d.cursors.Load()
	if err != nil {
		return nil, fmt.Errorf("completion: load cursor: %w", err)
	}
	if cursor.QuartetStates == nil {
		cursor.QuartetStates = make(map[string]QuartetState)
	}

	rows, err := d.registry.PollSince(ctx, cursor.LastCheck)
	if err != nil {
		return nil, fmt.Errorf("completion: poll registry: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	quartets := make(map[string]*quartetAgg)
	var order []string
	for _, row := range rows {
		key := identity.RawObsUID(row.Master, row.Obsnum, row.Subobsnum, row.Scannum)
		q, ok := quartets[key]
		if !ok {
			q = &quartetAgg{
				key: key, master: row.Master, obsnum: row.Obsnum,
				subobsnum: row.Subobsnum, scannum: row.Scannum,
				interfaces: make(map[int]bool), timestamp: row.Timestamp,
			}
			quartets[key] = q
			order = append(order, key)
		}
		q.interfaces[row.RoachIndex] = row.Valid
	}
	sort.Strings(order)

	expected := d.cfg.MaxInterfaceCount - len(d.cfg.DisabledInterfaces)
	now := d.now()
	newLastCheck := cursor.LastCheck

	var emitted []CompletionEvent
	for _, key := range order {
		if len(emitted) >= d.cfg.BatchSize {
			d.zl.Info("completion batch cap reached, deferring remainder", zap.Int("cap", d.cfg.BatchSize))
			break
		}
		q := quartets[key]
		validCount := 0
		for roach, valid := range q.interfaces {
			if valid && !d.cfg.DisabledInterfaces[roach] {
				validCount++
			}
		}

		state, existed := cursor.QuartetStates[key]
		switch {
		case !existed && validCount > 0:
			state = QuartetState{FirstValidTime: now, LastValidTime: now, ValidCount: validCount}
			cursor.QuartetStates[key] = state
		case existed && validCount > state.ValidCount:
			state.LastValidTime = now
			state.ValidCount = validCount
			cursor.QuartetStates[key] = state
		case existed:
			state.ValidCount = validCount
			cursor.QuartetStates[key] = state
		}

		reason, complete := d.evaluate(q, validCount, expected, state, now, quartets)
		if !complete {
			continue
		}

		_, err := d.checker.FindRawObsByQuartet(ctx, q.master, q.obsnum, q.subobsnum, q.scannum)
		if err == nil {
			delete(cursor.QuartetStates, key)
			if q.timestamp.After(newLastCheck) {
				newLastCheck = q.timestamp
			}
			continue
		}
		if !catalogerr.Is(err, catalogerr.MissingPrerequisite) {
			return nil, fmt.Errorf("completion: check existing product: %w", err)
		}

		ev := CompletionEvent{
			Master: q.master, Obsnum: q.obsnum, Subobsnum: q.subobsnum, Scannum: q.scannum,
			ValidCount: validCount, ExpectedCount: expected, CompletionReason: reason,
			ObsDate: q.timestamp.Format("2006-01-02"), ObsTimestamp: q.timestamp,
		}
		emitted = append(emitted, ev)
		delete(cursor.QuartetStates, key)
		if q.timestamp.After(newLastCheck) {
			newLastCheck = q.timestamp
		}

		d.events.Emit(ctx, eventlog.EventCompletionEmitted, eventlog.EntityQuartet, 0, map[string]any{
			"master": ev.Master, "obsnum": ev.Obsnum, "subobsnum": ev.Subobsnum, "scannum": ev.Scannum,
			"valid_count": ev.ValidCount, "expected_count": ev.ExpectedCount,
			"completion_reason": string(ev.CompletionReason), "obs_date": ev.ObsDate,
		})
	}

	cursor.LastCheck = newLastCheck
	if err := d.cursors.Save(cursor); err != nil {
		return nil, fmt.Errorf("completion: save cursor: %w", err)
	}
	return emitted, nil
}

// evaluate applies the three completion rules in priority order:
// all-expected, then quiescence-timeout, then newer-quartet-signal.
// The newer-quartet check only looks at quartets observed within this
// same tick's registry poll, sharing the candidate's master.
func (d *Detector) evaluate(q *quartetAgg, validCount, expected int, state QuartetState, now time.Time, quartets map[string]*quartetAgg) (Reason, bool) {
	if validCount == expected {
		return ReasonAllValid, true
	}
	if validCount > 0 && !state.LastValidTime.IsZero() && now.Sub(state.LastValidTime) >= d.cfg.ValidationTimeout {
		return ReasonTimeout, true
	}
	for _, other := range quartets {
		if other.key == q.key || other.master != q.master {
			continue
		}
		if quartetSucceeds(other, q) {
			return ReasonNewQuartet, true
		}
	}
	return "", false
}

// quartetSucceeds reports whether a's (obsnum, subobsnum, scannum)
// strictly succeeds b's, lexicographically.
func quartetSucceeds(a, b *quartetAgg) bool {
	if a.obsnum != b.obsnum {
		return a.obsnum > b.obsnum
	}
	if a.subobsnum != b.subobsnum {
		return a.subobsnum > b.subobsnum
	}
	return a.scannum > b.scannum
}
