// Package classifier talks to the external LLM that judges utterance groups.
// Everything here is a thin, rate-limited collaborator: the aggregation core
// treats the classifier as opaque and only depends on the Classifier
// interface and the response parser.
package classifier

import "context"

// Confidence is the classifier's certainty about a flag. Thresholds are
// monotone in permissiveness: a "low" threshold accepts every flag, "high"
// accepts only high-confidence ones.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	}
	return "unknown"
}

// ParseConfidence maps a config or wire string to a Confidence.
func ParseConfidence(s string) (Confidence, bool) {
	switch s {
	case "low":
		return ConfidenceLow, true
	case "medium":
		return ConfidenceMedium, true
	case "high":
		return ConfidenceHigh, true
	}
	return ConfidenceLow, false
}

// Meets reports whether a flag at this confidence clears the threshold.
func (c Confidence) Meets(threshold Confidence) bool {
	return c >= threshold
}

// Classifier is the external judgment service. Flag returns the raw model
// response; parsing is the caller's concern so an unparseable response can
// abort a check without retry side effects.
type Classifier interface {
	Flag(ctx context.Context, groups []string, exemptAuthors []string) (string, error)
	Feedback(ctx context.Context, groups []string, flagged []int, guidelines string) (string, error)
}
