package eventlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toltec-astro/tolteca-catalog/internal/model"
)

func TestFileSinkAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)
	defer sink.Close()

	logger := New(sink)
	logger.Emit(context.Background(), EventQuartetIngested, EntityDataProduct, 42,
		map[string]any{"master": "tcs", "obsnum": 1000})

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var ev model.EventLog
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &ev))
	assert.Equal(t, string(EventQuartetIngested), ev.EventType)
	assert.Equal(t, int64(42), ev.EntityID)
	assert.Equal(t, "tcs", ev.Payload["master"])
}

type failingWriter struct{}

func (failingWriter) Append(context.Context, model.EventLog) error {
	return assert.AnError
}

func TestEmitDoesNotPanicOnWriterError(t *testing.T) {
	logger := New(failingWriter{})
	logger.Emit(context.Background(), EventIngestionFailed, EntityQuartet, 0, nil)
}
