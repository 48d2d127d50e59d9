package model

// ProblemMeta is read-only problem configuration needed for judging.
type ProblemMeta struct {
	ProblemID       string  `json:"problem_id"`
	CheckpointCount int     `json:"checkpoint_count"`
	TimeLimit       float64 `json:"time_limit"`
	MemoryLimit     float64 `json:"memory_limit"`
}

// Limits returns the resource limits workers of this problem carry.
func (m ProblemMeta) Limits() ResourceLimits {
	return ResourceLimits{TimeLimit: m.TimeLimit, MemoryLimit: m.MemoryLimit}
}

// Submission is an upstream request to judge a source artifact.
type Submission struct {
	SubmissionID string `json:"submission_id"`
	ProblemID    string `json:"problem_id"`
}
