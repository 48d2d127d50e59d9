package model

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Kind selects which handler runs a descriptor.
type Kind string

const (
	KindMaster Kind = "MasterJob"
	KindWorker Kind = "WorkerJob"
)

// Known reports whether k is a kind this system can run.
func (k Kind) Known() bool {
	return k == KindMaster || k == KindWorker
}

// ResourceLimits are carried with worker jobs for the executing environment.
// TimeLimit is in milliseconds and MemoryLimit in megabytes. Both may be
// fractional.
type ResourceLimits struct {
	TimeLimit   float64 `yaml:"time_limit" json:"time_limit"`
	MemoryLimit float64 `yaml:"memory_limit" json:"memory_limit"`
}

// Check reports limits that are negative or not finite.
func (l ResourceLimits) Check() error {
	for _, f := range []struct {
		name  string
		value float64
	}{{"time_limit", l.TimeLimit}, {"memory_limit", l.MemoryLimit}} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("resource.%s must be a finite number", f.name)
		}
		if f.value < 0 {
			return fmt.Errorf("resource.%s must not be negative", f.name)
		}
	}
	return nil
}

// MasterPayload identifies the submission a master job judges.
type MasterPayload struct {
	ProblemID    string `yaml:"problem_id" json:"problem_id"`
	SubmissionID string `yaml:"submission_id" json:"submission_id"`
}

// WorkerPayload describes one slice of checkpoints to execute.
type WorkerPayload struct {
	RunnablePath  string         `yaml:"runnable_path" json:"runnable_path"`
	ProblemID     string         `yaml:"problem_id" json:"problem_id"`
	CheckpointSet []int          `yaml:"checkpoint_set" json:"checkpoint_set"`
	OwnerJobID    string         `yaml:"owner_job_id" json:"owner_job_id"`
	Limits        ResourceLimits `yaml:"-" json:"resource"`
}

// Descriptor is a unit of work in the job queue. Exactly one of Master and
// Worker is set for known kinds; both are nil for an unknown kind.
type Descriptor struct {
	Kind     Kind
	ID       string
	Priority int
	// Seq is the arrival order assigned by the queue on enqueue.
	Seq int64

	Master *MasterPayload
	Worker *WorkerPayload
}

// NewJobID returns a fresh globally unique job id.
func NewJobID() string {
	return uuid.NewString()
}

// NewMasterJob builds a master descriptor. Upstream never sets a priority.
func NewMasterJob(id, problemID, submissionID string) Descriptor {
	return Descriptor{
		Kind:   KindMaster,
		ID:     id,
		Master: &MasterPayload{ProblemID: problemID, SubmissionID: submissionID},
	}
}

// NewWorkerJob builds a worker descriptor.
func NewWorkerJob(id string, priority int, payload WorkerPayload) Descriptor {
	p := payload
	p.CheckpointSet = append([]int(nil), payload.CheckpointSet...)
	return Descriptor{
		Kind:     KindWorker,
		ID:       id,
		Priority: priority,
		Worker:   &p,
	}
}

// Validate checks the kind-specific required fields. Descriptors of an
// unknown kind pass validation; the scheduler rejects them.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	switch d.Kind {
	case KindMaster:
		if d.Master == nil {
			return fmt.Errorf("master payload is required")
		}
		if d.Master.ProblemID == "" {
			return fmt.Errorf("data.problem_id is required")
		}
		if d.Master.SubmissionID == "" {
			return fmt.Errorf("data.submission_id is required")
		}
	case KindWorker:
		w := d.Worker
		if w == nil {
			return fmt.Errorf("worker payload is required")
		}
		if w.RunnablePath == "" {
			return fmt.Errorf("data.runnable_path is required")
		}
		if w.ProblemID == "" {
			return fmt.Errorf("data.problem_id is required")
		}
		if w.OwnerJobID == "" {
			return fmt.Errorf("data.owner_job_id is required")
		}
		if len(w.CheckpointSet) == 0 {
			return fmt.Errorf("data.checkpoint_set must not be empty")
		}
		seen := make(map[int]struct{}, len(w.CheckpointSet))
		for _, c := range w.CheckpointSet {
			if c <= 0 {
				return fmt.Errorf("data.checkpoint_set contains non-positive index %d", c)
			}
			if _, dup := seen[c]; dup {
				return fmt.Errorf("data.checkpoint_set contains duplicate index %d", c)
			}
			seen[c] = struct{}{}
		}
		if err := w.Limits.Check(); err != nil {
			return err
		}
	case "":
		return fmt.Errorf("kind is required")
	}
	return nil
}

// SubmissionID returns the submission a descriptor belongs to, if known.
func (d Descriptor) SubmissionID() string {
	if d.Master != nil {
		return d.Master.SubmissionID
	}
	return ""
}
