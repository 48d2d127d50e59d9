package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Problem metadata errors
// 13000-13999: Submission & Judge errors
// 17000-17999: Dispatch errors (queue, scheduler, result channel)

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheMiss      ErrorCode = 10201
	CacheSetFailed ErrorCode = 10202

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Storage errors (10400-10499)
	StorageError        ErrorCode = 10400
	ObjectNotFound      ErrorCode = 10401
	MessageQueueError   ErrorCode = 10402
	MessagePublishError ErrorCode = 10403

	// ========== Problem Errors (12000-12999) ==========

	ProblemNotFound  ErrorCode = 12000
	TestCaseNotFound ErrorCode = 12100

	// ========== Submission & Judge Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound ErrorCode = 13000
	SourceNotFound     ErrorCode = 13001

	// Judge (13100-13199)
	JudgeQueueFull    ErrorCode = 13100
	JudgeSystemError  ErrorCode = 13101
	CompilationError  ErrorCode = 13102
	TimeLimitExceeded ErrorCode = 13104
	ExecutorError     ErrorCode = 13107

	// ========== Dispatch Errors (17000-17999) ==========

	// Job queue (17000-17099)
	MalformedDescriptor ErrorCode = 17000
	DuplicateJob        ErrorCode = 17001
	QueueUnavailable    ErrorCode = 17002

	// Scheduler (17100-17199)
	UnknownJobKind ErrorCode = 17100
	HandlerPanic   ErrorCode = 17101

	// Master / worker (17200-17299)
	WorkerTimeout     ErrorCode = 17200
	WorkerDispatchErr ErrorCode = 17201

	// Result channel (17300-17399)
	VerdictAlreadyPublished ErrorCode = 17300
	VerdictNotFound         ErrorCode = 17301
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",

	// Cache
	CacheError:     "Cache operation failed",
	CacheMiss:      "Cache miss",
	CacheSetFailed: "Failed to set cache",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Storage
	StorageError:        "Object storage operation failed",
	ObjectNotFound:      "Object not found",
	MessageQueueError:   "Message queue operation failed",
	MessagePublishError: "Failed to publish message",

	// Problem
	ProblemNotFound:  "Problem metadata not found",
	TestCaseNotFound: "Test case not found",

	// Submission
	SubmissionNotFound: "Submission not found",
	SourceNotFound:     "Submission source not found",

	// Judge
	JudgeQueueFull:    "Judge queue is full, please try again later",
	JudgeSystemError:  "Judge system error",
	CompilationError:  "Compilation error",
	TimeLimitExceeded: "Time limit exceeded",
	ExecutorError:     "Checkpoint execution failed",

	// Job queue
	MalformedDescriptor: "Malformed job descriptor",
	DuplicateJob:        "Job id already enqueued",
	QueueUnavailable:    "Job queue unavailable",

	// Scheduler
	UnknownJobKind: "Unknown job kind",
	HandlerPanic:   "Job handler panicked",

	// Master / worker
	WorkerTimeout:     "Worker did not report before the collect deadline",
	WorkerDispatchErr: "Failed to dispatch worker job",

	// Result channel
	VerdictAlreadyPublished: "Verdict already published for this job",
	VerdictNotFound:         "Verdict not found",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == RecordNotFound, c == ProblemNotFound,
		c == SubmissionNotFound, c == VerdictNotFound, c == ObjectNotFound:
		return 404
	case c == DuplicateJob, c == VerdictAlreadyPublished, c == RecordAlreadyExists:
		return 409
	case c == TooManyRequests, c == JudgeQueueFull:
		return 429
	case c == ServiceUnavailable, c == QueueUnavailable:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == MalformedDescriptor, c == UnknownJobKind:
		return 400
	default:
		return 500
	}
}
