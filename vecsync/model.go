package vecsync

import "fmt"

// Direction selects which way a sync session ships deltas.
type Direction int

const (
	// Push ships local deltas to the peer.
	Push Direction = iota
	// Pull fetches the peer's deltas.
	Pull
	// Bidirectional pushes then pulls.
	Bidirectional
)

func (d Direction) String() string {
	switch d {
	case Push:
		return "push"
	case Pull:
		return "pull"
	case Bidirectional:
		return "bidirectional"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Stats summarizes a completed sync session.
type Stats struct {
	// Sent is the number of records shipped to the peer.
	Sent int
	// Received is the number of records fetched from the peer.
	Received int
	// Applied counts records newly applied on the receiving side.
	Applied int
	// Conflicts counts divergent writes settled by the comparator.
	Conflicts int
	// Batches is the number of batches shipped in either direction.
	Batches int
}

func (s Stats) add(o Stats) Stats {
	return Stats{
		Sent:      s.Sent + o.Sent,
		Received:  s.Received + o.Received,
		Applied:   s.Applied + o.Applied,
		Conflicts: s.Conflicts + o.Conflicts,
		Batches:   s.Batches + o.Batches,
	}
}

// SyncError reports a failed session together with the watermark that
// remains acked, so a retry resumes from LastAcked without losing records.
type SyncError struct {
	Op        string
	LastAcked uint64
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("vecsync: %s failed at watermark %d: %v", e.Op, e.LastAcked, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
