package storage

import "shardcurve/internal/model"

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// Memory keeps log records in memory.
type Memory struct {
	Records []model.LogRecord
}

func (m *Memory) PutLogBatch(logs []model.LogRecord) error {
	m.Records = append(m.Records, logs...)
	return nil
}

// Fanout writes every batch to each sink in order and stops at the first failure.
type Fanout []Storage

func (f Fanout) PutLogBatch(logs []model.LogRecord) error {
	for _, sink := range f {
		if err := sink.PutLogBatch(logs); err != nil {
			return err
		}
	}
	return nil
}
