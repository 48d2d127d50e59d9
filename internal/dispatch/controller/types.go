package controller

// SubmitRequest is the upstream request to judge a submission. Source is
// optional; when present it is stored before the job is enqueued.
type SubmitRequest struct {
	ProblemID    string `json:"problem_id" binding:"required"`
	SubmissionID string `json:"submission_id"`
	Source       string `json:"source"`
}

// SubmitResponse identifies the queued master job.
type SubmitResponse struct {
	JobID        string `json:"job_id"`
	SubmissionID string `json:"submission_id"`
	Status       string `json:"status"`
	ReceivedAt   int64  `json:"received_at"`
}

// QueueResponse lists pending job ids.
type QueueResponse struct {
	Pending []string `json:"pending"`
	Count   int      `json:"count"`
}
