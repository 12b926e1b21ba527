package queue

import "errors"

var (
	// ErrTaskNotFound is returned when a task id does not exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrRecordNotFound is returned when a transcription record does not exist.
	ErrRecordNotFound = errors.New("transcription record not found")
	// ErrInvalidTransition is returned when a task is not in the state an
	// operation requires.
	ErrInvalidTransition = errors.New("invalid task state transition")
	// ErrInvalidPayload marks payloads that cannot be encoded or decoded.
	ErrInvalidPayload = errors.New("invalid task payload")
)
