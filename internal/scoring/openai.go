package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"ai-quant/internal/trace"
)

const scoringSystemPrompt = "You are a disciplined financial news analyst. " +
	"For each headline you receive, output one JSON object with fields: " +
	"ticker (uppercase US stock symbol, or null if no single confident symbol), " +
	"sentiment (number in [-1,1]), summary (one short sentence), " +
	"risk_tags (array of strings, empty unless the headline implies regulatory, " +
	"legal, fraud, delisting or bankruptcy risk). " +
	"Respond ONLY with a JSON array, one element per headline, in input order."

// OpenAIScorer calls an OpenAI-compatible chat completions endpoint. The
// endpoint is configurable so the same client covers DeepSeek and proxies.
type OpenAIScorer struct {
	endpoint  string
	model     string
	apiKeyEnv string
	client    *http.Client
}

type OpenAIParams struct {
	Endpoint  string
	Model     string
	APIKeyEnv string
}

func NewOpenAIScorer(p OpenAIParams) *OpenAIScorer {
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}
	return &OpenAIScorer{
		endpoint:  endpoint,
		model:     p.Model,
		apiKeyEnv: p.APIKeyEnv,
		client:    &http.Client{},
	}
}

// ScoreTitles sends one batch and returns the raw array body found in the
// completion. No field of the response is trusted here; typing is the
// validator's job.
func (s *OpenAIScorer) ScoreTitles(ctx context.Context, titles []string) ([]byte, error) {
	ctx, span := trace.StartSpan(ctx, "scoring-api-call")
	defer span.End()

	apiKey := os.Getenv(s.apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s missing", s.apiKeyEnv)
	}

	titlesB, _ := json.Marshal(titles)
	user := fmt.Sprintf("Headlines (%d):\n%s", len(titles), string(titlesB))

	body := map[string]any{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "system", "content": scoringSystemPrompt},
			{"role": "user", "content": user},
		},
		"temperature": 0,
	}
	bb, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(bb))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("scoring service http %d", resp.StatusCode)
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, err
	}
	if len(r.Choices) == 0 {
		return nil, errors.New("no choices in scoring response")
	}

	return extractArray(r.Choices[0].Message.Content), nil
}

// extractArray locates the JSON array inside the completion text, tolerating
// code fences and surrounding prose. When no array is found the text is
// returned as-is and left for the validator to reject.
func extractArray(text string) []byte {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	t = strings.TrimSpace(t)

	start := strings.Index(t, "[")
	end := strings.LastIndex(t, "]")
	if start >= 0 && end > start {
		return []byte(t[start : end+1])
	}
	return []byte(t)
}
