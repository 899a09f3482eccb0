package classifier

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnparseable means the model response carried no usable result block.
// The caller abandons the current check without mutating any state; the next
// qualifying event retries naturally.
var ErrUnparseable = errors.New("classifier: unparseable response")

// Flag is one flagged group index with the model's stated confidence.
type Flag struct {
	Index      int
	Confidence Confidence
}

var (
	resultRe   = regexp.MustCompile(`(?s)<result>\s*\[(.*?)\]\s*</result>`)
	responseRe = regexp.MustCompile(`(?s)<response>(.*?)</response>`)
)

// ExtractFlags pulls the flagged indices out of a raw flag response.
//
// The model is asked to emit entries as "index:confidence" inside a result
// block, e.g. <result>[1:high, 3:low]</result>. A bare index defaults to
// high, which smaller models fall back to often enough to matter. Anything
// before the closing analysis tag is the model thinking out loud and is
// discarded first. An empty list is a valid "nothing to flag" answer; a
// missing or malformed result block is ErrUnparseable.
func ExtractFlags(raw string) ([]Flag, error) {
	if i := strings.LastIndex(raw, "</analysis>"); i >= 0 {
		raw = raw[i+len("</analysis>"):]
	}

	m := resultRe.FindStringSubmatch(raw)
	if m == nil {
		return nil, ErrUnparseable
	}

	body := strings.TrimSpace(m[1])
	if body == "" {
		return []Flag{}, nil
	}

	var flags []Flag
	for _, entry := range strings.Split(body, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		idxStr, confStr := entry, ""
		if colon := strings.IndexByte(entry, ':'); colon >= 0 {
			idxStr = strings.TrimSpace(entry[:colon])
			confStr = strings.TrimSpace(entry[colon+1:])
		}

		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			return nil, ErrUnparseable
		}

		conf := ConfidenceHigh
		if confStr != "" {
			parsed, ok := ParseConfidence(strings.ToLower(confStr))
			if !ok {
				return nil, ErrUnparseable
			}
			conf = parsed
		}
		flags = append(flags, Flag{Index: idx, Confidence: conf})
	}
	return flags, nil
}

// ExtractFeedback pulls the user-facing text out of a feedback response.
// Returns "" when the model skipped the response tags.
func ExtractFeedback(raw string) string {
	m := responseRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
