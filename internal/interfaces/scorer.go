package interfaces

import "context"

// Scorer submits one ordered batch of titles to the external sentiment
// scoring service and returns the raw response body. The body stays untyped
// until it passes the validator; nothing else is allowed to interpret it.
type Scorer interface {
	ScoreTitles(ctx context.Context, titles []string) ([]byte, error)
}
