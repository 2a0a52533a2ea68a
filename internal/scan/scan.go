// Package scan drives asynchronous malware analysis of uploaded payloads.
//
// The external service is not a single synchronous call: a submission returns
// an analysis handle that must be polled until the analysis reaches a terminal
// state. Scan runs that loop with a bounded retry budget and an overall
// wall-clock deadline, so a caller is never stuck behind a hung analysis.
package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Verdict is the terminal outcome of a completed analysis.
type Verdict string

const (
	// VerdictClean means the analysis completed with zero malicious and zero
	// suspicious engine hits.
	VerdictClean Verdict = "clean"
	// VerdictFlagged means at least one engine reported the payload as
	// malicious or suspicious.
	VerdictFlagged Verdict = "flagged"
)

// Stats holds the engine hit counts from a completed analysis.
type Stats struct {
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
}

// Result is a terminal scan outcome. It only exists for completed analyses;
// every non-terminal outcome is an error.
type Result struct {
	Verdict Verdict
	Stats   Stats
}

// ErrSubmit is returned when the payload could not be handed to the scan
// service at all. Submission is not retried: re-posting a large payload
// silently is not idempotent from the service's point of view.
var ErrSubmit = errors.New("scan submission failed")

// ErrTimeout is returned when the poll retry budget or the overall deadline
// is exhausted before the analysis reached a terminal state.
var ErrTimeout = errors.New("scan timed out")

// Scanner submits a payload for analysis and blocks until a terminal verdict,
// an error, or context cancellation.
type Scanner interface {
	Scan(ctx context.Context, filename string, data []byte) (Result, error)
}

// verdictFor maps engine hit counts to a verdict. Any non-zero malicious or
// suspicious count flags the payload.
func verdictFor(st Stats) Verdict {
	if st.Malicious > 0 || st.Suspicious > 0 {
		return VerdictFlagged
	}
	return VerdictClean
}

// HashPayload returns the hex-encoded SHA-256 of data, the key under which
// verdicts are cached.
func HashPayload(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
