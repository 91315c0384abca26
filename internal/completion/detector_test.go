package completion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
	"github.com/toltec-astro/tolteca-catalog/internal/eventlog"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

type fakeRegistry struct {
	rows []RegistryRow
}

func (f *fakeRegistry) PollSince(_ context.Context, since time.Time) ([]RegistryRow, error) {
	var out []RegistryRow
	for _, r := range f.rows {
		if r.Timestamp.After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeChecker struct {
	existing map[string]bool
}

func (f *fakeChecker) FindRawObsByQuartet(_ context.Context, master string, obsnum, subobsnum, scannum int) (model.DataProduct, error) {
	key := master
	if f.existing[key+"-exists"] {
		return model.DataProduct{PK: 1}, nil
	}
	return model.DataProduct{}, catalogerr.New(catalogerr.MissingPrerequisite, "FindRawObsByQuartet", catalogerr.ErrNotFound)
}

type discardWriter struct{}

func (discardWriter) Append(context.Context, model.EventLog) error { return nil }

func newDetector(t *testing.T, rows []RegistryRow, cfg Config, clock time.Time) (*Detector, *fakeChecker) {
	t.Helper()
	checker := &fakeChecker{existing: make(map[string]bool)}
	d := New(&fakeRegistry{rows: rows}, checker, NewMemoryCursorStore(), eventlog.New(discardWriter{}), cfg)
	d.now = func() time.Time { return clock }
	return d, checker
}

func row(master string, obsnum, sub, scan, roach int, valid bool, ts time.Time) RegistryRow {
	return RegistryRow{Master: master, Obsnum: obsnum, Subobsnum: sub, Scannum: scan, RoachIndex: roach, Valid: valid, Timestamp: ts}
}

func TestTickAllExpectedCompletesQuartet(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var rows []RegistryRow
	for roach := 0; roach < 13; roach++ {
		rows = append(rows, row("ics", 1001, 0, 0, roach, true, base.Add(time.Duration(roach)*time.Second)))
	}
	d, _ := newDetector(t, rows, Config{ValidationTimeout: 30 * time.Second, MaxInterfaceCount: 13, BatchSize: 50}, base)

	events, err := d.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ReasonAllValid, events[0].CompletionReason)
	assert.Equal(t, 13, events[0].ValidCount)
	assert.Equal(t, 1001, events[0].Obsnum)
}

func TestTickQuiescenceTimeout(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []RegistryRow{
		row("ics", 1002, 0, 0, 0, true, base),
		row("ics", 1002, 0, 0, 1, true, base),
	}
	cfg := Config{ValidationTimeout: 30 * time.Second, MaxInterfaceCount: 13, BatchSize: 50}
	cursors := NewMemoryCursorStore()
	checker := &fakeChecker{existing: make(map[string]bool)}
	events := eventlog.New(discardWriter{})

	d := New(&fakeRegistry{rows: rows}, checker, cursors, events, cfg)
	d.now = func() time.Time { return base }
	first, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, first)

	// No new rows, but the quiescence window has elapsed since last_valid_time.
	d2 := New(&fakeRegistry{rows: nil}, checker, cursors, events, cfg)
	laterClock := base.Add(31 * time.Second)
	d2.now = func() time.Time { return laterClock }
	// Re-inject the same rows so PollSince(since=zero-cursor) still yields them;
	// the cursor only advances past *completed* quartets.
	d2.registry = &fakeRegistry{rows: rows}
	second, err := d2.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, ReasonTimeout, second[0].CompletionReason)
	assert.Equal(t, 2, second[0].ValidCount)
}

func TestTickNewerQuartetSignal(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []RegistryRow{
		row("ics", 1003, 0, 0, 0, true, base),
		row("ics", 1003, 0, 0, 1, true, base.Add(time.Second)),
		// A newer quartet appears with only one valid interface, but its mere
		// existence definitively completes quartet 1003.
		row("ics", 1004, 0, 0, 0, true, base.Add(2*time.Second)),
	}
	cfg := Config{ValidationTimeout: 30 * time.Second, MaxInterfaceCount: 13, BatchSize: 50}
	d, _ := newDetector(t, rows, cfg, base)

	events, err := d.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ReasonNewQuartet, events[0].CompletionReason)
	assert.Equal(t, 1003, events[0].Obsnum)
}

func TestTickSuppressesDuplicateWhenProductExists(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var rows []RegistryRow
	for roach := 0; roach < 13; roach++ {
		rows = append(rows, row("ics", 1005, 0, 0, roach, true, base))
	}
	cfg := Config{ValidationTimeout: 30 * time.Second, MaxInterfaceCount: 13, BatchSize: 50}
	checker := &fakeChecker{existing: map[string]bool{"ics-exists": true}}
	d := New(&fakeRegistry{rows: rows}, checker, NewMemoryCursorStore(), eventlog.New(discardWriter{}), cfg)
	d.now = func() time.Time { return base }

	events, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTickDisabledInterfacesLowerExpectedCount(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var rows []RegistryRow
	for roach := 0; roach < 13; roach++ {
		if roach == 7 {
			continue // roach 7 never reports
		}
		rows = append(rows, row("ics", 1006, 0, 0, roach, true, base))
	}
	cfg := Config{ValidationTimeout: 30 * time.Second, MaxInterfaceCount: 13,
		DisabledInterfaces: map[int]bool{7: true}, BatchSize: 50}
	d, _ := newDetector(t, rows, cfg, base)

	events, err := d.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ReasonAllValid, events[0].CompletionReason)
	assert.Equal(t, 12, events[0].ValidCount)
	assert.Equal(t, 12, events[0].ExpectedCount)
}

func TestTickBatchCapBoundsEmittedEvents(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var rows []RegistryRow
	for q := 0; q < 3; q++ {
		for roach := 0; roach < 13; roach++ {
			rows = append(rows, row("ics", 2000+q, 0, 0, roach, true, base))
		}
	}
	cfg := Config{ValidationTimeout: 30 * time.Second, MaxInterfaceCount: 13, BatchSize: 2}
	d, _ := newDetector(t, rows, cfg, base)

	events, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
