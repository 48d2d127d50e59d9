package model

// JudgeStatus is the lifecycle state of a submission in the dispatcher.
type JudgeStatus string

const (
	StatusPending  JudgeStatus = "Pending"
	StatusRunning  JudgeStatus = "Running"
	StatusFinished JudgeStatus = "Finished"
	StatusFailed   JudgeStatus = "Failed"
)

// Terminal reports whether no further transitions happen from s.
func (s JudgeStatus) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// WorkerOutcome is one worker's contribution to a final verdict.
type WorkerOutcome struct {
	JobID       string  `json:"job_id"`
	Checkpoints []int   `json:"checkpoints"`
	Verdict     Verdict `json:"verdict"`
	TimedOut    bool    `json:"timed_out,omitempty"`
}

// VerdictRecord is the stored judging state of one submission.
type VerdictRecord struct {
	SubmissionID string          `json:"submission_id"`
	ProblemID    string          `json:"problem_id"`
	MasterJobID  string          `json:"master_job_id"`
	Status       JudgeStatus     `json:"status"`
	Verdict      Verdict         `json:"verdict,omitempty"`
	Workers      []WorkerOutcome `json:"workers,omitempty"`
	ErrorCode    int             `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ReceivedAt   int64           `json:"received_at"`
	FinishedAt   int64           `json:"finished_at,omitempty"`
}
