package core

import "errors"

var (
	// ErrAuthExpired indicates the remote service rejected the session token.
	// It is the one failure deliberately surfaced to the caller of Analyze:
	// stored credentials are cleared and the user layer must re-authenticate.
	ErrAuthExpired = errors.New("session credentials expired")

	// ErrRateLimited indicates the remote service returned 429 on every
	// attempt up to the retry cap.
	ErrRateLimited = errors.New("rate limited by classification service")

	// ErrRetriesExhausted indicates the remote call failed transiently
	// (timeout, transport error, 5xx) on every attempt.
	ErrRetriesExhausted = errors.New("classification retries exhausted")

	// ErrMalformedResponse indicates a 2xx response whose body could not be
	// normalized into an AnalysisResult. Treated like a network failure.
	ErrMalformedResponse = errors.New("malformed classification response")
)
