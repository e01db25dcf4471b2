package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ai-quant/internal/types"
)

// ErrBatchRejected marks a structurally invalid scoring response. It is the
// validator's only failure mode; callers must not persist anything from a
// rejected batch.
var ErrBatchRejected = errors.New("scoring batch rejected")

// tickerPattern is the only shape accepted as a symbol. Anything else is
// coerced to absent, never fuzzy-matched.
var tickerPattern = regexp.MustCompile(`^[A-Z]{1,6}$`)

// Validator turns a raw scoring-service response into trusted analysis
// records. It is a pure transform: parse, check correlation with the input
// batch, then sanitize every element independently.
type Validator struct {
	maxSummaryLen int
	now           func() time.Time
}

func NewValidator(maxSummaryLen int) *Validator {
	if maxSummaryLen <= 0 {
		maxSummaryLen = 280
	}
	return &Validator{maxSummaryLen: maxSummaryLen, now: time.Now}
}

// ValidateBatch returns exactly len(titles) records in input order, or a
// rejection wrapping ErrBatchRejected. A length mismatch rejects the whole
// batch even if individual elements look valid: without the length match
// there is no trustworthy correlation back to the inputs.
func (v *Validator) ValidateBatch(titles []string, body []byte) ([]types.AnalysisRecord, error) {
	var elements []any
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, fmt.Errorf("%w: response is not a JSON array: %v", ErrBatchRejected, err)
	}
	if len(elements) != len(titles) {
		return nil, fmt.Errorf("%w: response has %d elements, expected %d", ErrBatchRejected, len(elements), len(titles))
	}

	createdAt := v.now().UTC()
	records := make([]types.AnalysisRecord, 0, len(elements))
	for _, el := range elements {
		records = append(records, sanitize(el, v.maxSummaryLen, createdAt))
	}
	return records, nil
}

// sanitize type-checks one element. A bad element never rejects the batch;
// every field degrades to its safe zero independently.
func sanitize(el any, maxSummaryLen int, createdAt time.Time) types.AnalysisRecord {
	rec := types.AnalysisRecord{RiskTags: []string{}, CreatedAt: createdAt}

	m, ok := el.(map[string]any)
	if !ok {
		return rec
	}

	if s, ok := m["ticker"].(string); ok {
		s = strings.TrimSpace(s)
		if tickerPattern.MatchString(s) {
			rec.Ticker = s
		}
	}

	rec.Sentiment = clampSentiment(m["sentiment"])

	if s, ok := m["summary"].(string); ok {
		rec.Summary = truncate(s, maxSummaryLen)
	}

	if tags, ok := m["risk_tags"].([]any); ok {
		coerced := make([]string, 0, len(tags))
		valid := true
		for _, t := range tags {
			s, ok := t.(string)
			if !ok {
				valid = false
				break
			}
			coerced = append(coerced, s)
		}
		if valid {
			rec.RiskTags = coerced
		}
	}

	return rec
}

// clampSentiment coerces any value to a sentiment in [-1, 1].
// Non-numeric values become 0.
func clampSentiment(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if f < -1 {
		return -1
	}
	if f > 1 {
		return 1
	}
	return f
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
