package syncs

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nislab/gensync/internal/comm"
	"github.com/nislab/gensync/internal/sketches"
)

// StatsBucket selects one of the session timing buckets.
type StatsBucket int

const (
	// IdleTime: waiting on the peer (connect, listen, blocked recv at a
	// phase boundary).
	IdleTime StatsBucket = iota
	// CommTime: active send/recv exchange.
	CommTime
	// CompTime: local computation.
	CompTime

	numBuckets
)

var bucketNames = [numBuckets]string{"Idle time", "Comm time", "Comp time"}

// noActiveBucket marks the timer as stopped.
const noActiveBucket = -1

// SyncStats accumulates per-session timing buckets, byte counters, and
// named event counters. The timer is start/stop per bucket with a
// non-reentrant guard: nesting is a programming error and panics.
type SyncStats struct {
	SessionID string

	totals  [numBuckets]time.Duration
	active  int
	started time.Time

	xmit uint64
	recv uint64

	counters map[string]uint64
}

// NewSyncStats creates an empty stats block with a fresh session id.
func NewSyncStats() *SyncStats {
	return &SyncStats{
		SessionID: uuid.NewString(),
		active:    noActiveBucket,
		counters:  make(map[string]uint64),
	}
}

// TimerStart opens bucket b. Starting while any bucket is open is a
// stats-reentry bug and panics.
func (s *SyncStats) TimerStart(b StatsBucket) {
	if s.active != noActiveBucket {
		panic(fmt.Sprintf("stats-reentry: bucket %s started while %s is active",
			bucketNames[b], bucketNames[s.active]))
	}
	s.active = int(b)
	s.started = time.Now()
}

// TimerEnd closes bucket b, which must be the open one.
func (s *SyncStats) TimerEnd(b StatsBucket) {
	if s.active != int(b) {
		panic(fmt.Sprintf("stats-reentry: bucket %s ended while active is %d",
			bucketNames[b], s.active))
	}
	s.totals[b] += time.Since(s.started)
	s.active = noActiveBucket
}

// TimerAbort closes whatever bucket is open, if any; engines call this on
// error paths before finalizing.
func (s *SyncStats) TimerAbort() {
	if s.active != noActiveBucket {
		s.totals[s.active] += time.Since(s.started)
		s.active = noActiveBucket
	}
}

// Total returns the accumulated time of one bucket.
func (s *SyncStats) Total(b StatsBucket) time.Duration {
	return s.totals[b]
}

// RecordComm samples the communicant's monotone byte counters into the
// XMIT/RECV totals. Engines call it when a session finishes; the sampling
// is idempotent.
func (s *SyncStats) RecordComm(c *comm.Communicant) {
	s.xmit = c.XmitBytes()
	s.recv = c.RecvBytes()
}

// Xmit returns bytes transmitted this session.
func (s *SyncStats) Xmit() uint64 { return s.xmit }

// Recv returns bytes received this session.
func (s *SyncStats) Recv() uint64 { return s.recv }

// IncCounter bumps a named event counter (doublings, retries, tree depth).
func (s *SyncStats) IncCounter(name string) {
	s.counters[name]++
}

// SetCounter overwrites a named counter.
func (s *SyncStats) SetCounter(name string, v uint64) {
	s.counters[name] = v
}

// Counter reads a named counter.
func (s *SyncStats) Counter(name string) uint64 {
	return s.counters[name]
}

// Render returns the human-readable statistics block.
func (s *SyncStats) Render(name string, sk *sketches.Sketches) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sync method: %s\n", name)
	fmt.Fprintf(&b, "Session ID: %s\n", s.SessionID)
	total := time.Duration(0)
	for i := StatsBucket(0); i < numBuckets; i++ {
		total += s.totals[i]
	}
	fmt.Fprintf(&b, "Total time: %d ns\n", total.Nanoseconds())
	for i := StatsBucket(0); i < numBuckets; i++ {
		fmt.Fprintf(&b, "%s: %d ns\n", bucketNames[i], s.totals[i].Nanoseconds())
	}
	fmt.Fprintf(&b, "Bytes transmitted: %d\n", s.xmit)
	fmt.Fprintf(&b, "Bytes received: %d\n", s.recv)
	if len(s.counters) > 0 {
		keys := make([]string, 0, len(s.counters))
		for k := range s.counters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %d\n", k, s.counters[k])
		}
	}
	if sk != nil {
		fmt.Fprintf(&b, "%s\n", sk.String())
	}
	return b.String()
}

// Counter names engines record.
const (
	CounterDoublings     = "Doublings"
	CounterInterpRetries = "Interpolation retries"
	CounterTreeDepth     = "Tree depth"
	CounterTreeNodes     = "Tree nodes"
)
