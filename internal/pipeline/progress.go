package pipeline

import "sync/atomic"

type Decision string

const (
	DecisionAccepted       Decision = "accepted"
	DecisionExactDuplicate Decision = "exact_duplicate"
	DecisionNearDuplicate  Decision = "near_duplicate"
)

// Progress is the running tally of a batch. It is passed into each step and a
// new value is returned; nothing is shared between batches.
type Progress struct {
	RunUUID         string `json:"run_uuid"`
	Total           int    `json:"total"`
	Processed       int    `json:"processed"`
	Accepted        int    `json:"accepted"`
	ExactDuplicates int    `json:"exact_duplicates"`
	NearDuplicates  int    `json:"near_duplicates"`
	Stopped         bool   `json:"stopped"`
}

func NewProgress(runUUID string, total int) Progress {
	return Progress{RunUUID: runUUID, Total: total}
}

// Record returns p with one more processed candidate.
func (p Progress) Record(d Decision) Progress {
	p.Processed++
	switch d {
	case DecisionAccepted:
		p.Accepted++
	case DecisionExactDuplicate:
		p.ExactDuplicates++
	case DecisionNearDuplicate:
		p.NearDuplicates++
	}
	return p
}

// Merge adds other's counters to p.
func (p Progress) Merge(other Progress) Progress {
	p.Total += other.Total
	p.Processed += other.Processed
	p.Accepted += other.Accepted
	p.ExactDuplicates += other.ExactDuplicates
	p.NearDuplicates += other.NearDuplicates
	p.Stopped = p.Stopped || other.Stopped
	return p
}

// StopChecker is consulted between candidates.
type StopChecker interface {
	ShouldStop() bool
}

// StopFlag is a StopChecker that can be flipped from a signal handler.
type StopFlag struct {
	stopped atomic.Bool
}

func (f *StopFlag) Stop() {
	f.stopped.Store(true)
}

func (f *StopFlag) ShouldStop() bool {
	return f != nil && f.stopped.Load()
}
