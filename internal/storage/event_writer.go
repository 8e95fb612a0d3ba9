package storage

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"shardcurve/internal/curve"
	"shardcurve/internal/events"
	"shardcurve/internal/model"
)

// EventWriter encodes committed curve events as pool logs and buffers them until Flush.
// Every call to BeginTx opens a new transaction; events emitted after it share its block
// and transaction index and get consecutive log indexes within the block.
type EventWriter struct {
	sink   Storage
	logger *zap.Logger

	mu       sync.Mutex
	pos      events.LogPosition
	started  bool
	nextLog  uint64
	buffered []model.LogRecord
	err      error
}

func NewEventWriter(sink Storage, logger *zap.Logger) *EventWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventWriter{sink: sink, logger: logger}
}

// BeginTx positions subsequent events. Log indexes restart when the block changes.
func (w *EventWriter) BeginTx(pos events.LogPosition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started || pos.BlockNumber != w.pos.BlockNumber {
		w.nextLog = 0
	}
	w.started = true
	w.pos = pos
}

// Emit implements curve.EventSink.
func (w *EventWriter) Emit(event curve.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	pos := w.pos
	pos.LogIndex = w.nextLog
	record, err := events.NewLogRecord(pos, event)
	if err != nil {
		w.err = fmt.Errorf("encode %s: %w", event.EventName(), err)
		w.logger.Error("event encode failed", zap.String("event", event.EventName()), zap.Error(err))
		return
	}
	w.nextLog++
	w.buffered = append(w.buffered, record)
}

// Pending returns the number of buffered records.
func (w *EventWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffered)
}

// Flush writes buffered records to the sink. An encode failure seen by Emit is reported
// here and nothing is written.
func (w *EventWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if len(w.buffered) == 0 {
		return nil
	}
	if err := w.sink.PutLogBatch(w.buffered); err != nil {
		return fmt.Errorf("store logs: %w", err)
	}
	w.buffered = nil
	return nil
}
