package indexer

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks in the range.
func (r BlockRange) Len() uint64 { return r.To - r.From + 1 }

// Cursor is where a sync stands before it starts.
type Cursor struct {
	From          uint64
	To            uint64
	Latest        uint64
	Confirmations uint64
	// LastProcessed is the checkpointed block, valid when Resumed is set.
	LastProcessed uint64
	Resumed       bool
}

// Pending resolves the blocks still to fetch. A zero To follows the head minus the
// confirmation depth. ok is false when the cursor is already caught up.
func (c Cursor) Pending() (BlockRange, bool) {
	to := c.To
	if to == 0 {
		if c.Latest < c.Confirmations {
			return BlockRange{}, false
		}
		to = c.Latest - c.Confirmations
	}
	from := c.From
	if c.Resumed && c.LastProcessed >= from {
		from = c.LastProcessed + 1
	}
	if from > to {
		return BlockRange{}, false
	}
	return BlockRange{From: from, To: to}, true
}

// SplitRange cuts an inclusive range into consecutive batches of at most batchSize blocks.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; start += batchSize {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
	}
}
