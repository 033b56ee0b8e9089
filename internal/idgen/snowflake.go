// Package idgen implements a Twitter Snowflake-style ID generator for rows
// created inside this process (sources, messages, contacts, companies):
//
//	┌─────────┬─────────────────────┬────────────┬──────────────┐
//	│ 1 bit   │      41 bits        │  10 bits   │   12 bits    │
//	│ sign(0) │ timestamp (ms)      │ worker_id  │  sequence    │
//	└─────────┴─────────────────────┴────────────┴──────────────┘
//
// IDs are time-sortable and require no coordination across concurrent
// consumers, which matters because chunk and email handlers for the same
// tenant run on different workers.
package idgen

import (
	"errors"
	"sync"
	"time"
)

const (
	epoch int64 = 1704067200000 // 2024-01-01T00:00:00Z

	workerIDBits = 10
	sequenceBits = 12

	maxWorkerID = (1 << workerIDBits) - 1
	maxSequence = (1 << sequenceBits) - 1

	timestampShift = workerIDBits + sequenceBits
	workerIDShift  = sequenceBits
)

var (
	ErrInvalidWorkerID = errors.New("idgen: worker ID must be between 0 and 1023")
	ErrClockMovedBack  = errors.New("idgen: clock moved backwards")
)

// Generator generates unique, time-sortable 64-bit IDs.
type Generator struct {
	mu       sync.Mutex
	workerID int64
	sequence int64
	lastTime int64
}

// NewGenerator creates a Generator for the given worker ID (0..1023).
func NewGenerator(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, ErrInvalidWorkerID
	}
	return &Generator{workerID: workerID}, nil
}

// Generate produces the next ID.
func (g *Generator) Generate() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < g.lastTime {
		return 0, ErrClockMovedBack
	}

	if now == g.lastTime {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			now = waitNextMillis(g.lastTime)
		}
	} else {
		g.sequence = 0
	}
	g.lastTime = now

	id := ((now - epoch) << timestampShift) | (g.workerID << workerIDShift) | g.sequence
	return id, nil
}

// MustGenerate panics on error; used where a failed clock is a fatal
// condition for the caller (e.g. issuing a row ID during insert).
func (g *Generator) MustGenerate() int64 {
	id, err := g.Generate()
	if err != nil {
		panic(err)
	}
	return id
}

func waitNextMillis(lastTime int64) int64 {
	now := time.Now().UnixMilli()
	for now <= lastTime {
		time.Sleep(100 * time.Microsecond)
		now = time.Now().UnixMilli()
	}
	return now
}

// Timestamp extracts the millisecond timestamp embedded in id.
func Timestamp(id int64) time.Time {
	return time.UnixMilli((id >> timestampShift) + epoch)
}
