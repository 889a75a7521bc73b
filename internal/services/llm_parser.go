package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const llmParsePrompt = `You extract structured time records from free text.

Input text: %q
Current time: %s

Return ONLY a JSON object, no prose:
{
  "start_time": "YYYY-MM-DDTHH:MM:SS",
  "end_time": "YYYY-MM-DDTHH:MM:SS",
  "activity": "short activity phrase",
  "confidence": 0.95
}

Rules:
1. Identify the start and end of the time span.
2. Resolve relative expressions ("two hours ago", "昨天晚上") against the current time.
3. If only a duration is given, end at the current time.
4. confidence is your certainty in [0,1].
5. Times are local, ISO format, no timezone suffix.`

// LLMParserConfig configures the fallback extraction tier.
type LLMParserConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	RequestsPer float64 // outbound requests per second
}

// llmExtractor is the language-model-assisted fallback tier. It speaks the
// OpenAI-compatible chat completions wire shape.
type llmExtractor struct {
	cfg     LLMParserConfig
	loc     *time.Location
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewLLMExtractor creates the fallback tier, or nil when no API key is
// configured (which disables the tier).
func NewLLMExtractor(cfg LLMParserConfig, loc *time.Location) *llmExtractor {
	if cfg.APIKey == "" || cfg.BaseURL == "" {
		return nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPer <= 0 {
		cfg.RequestsPer = 2
	}
	if loc == nil {
		loc = time.Local
	}
	return &llmExtractor{
		cfg:     cfg,
		loc:     loc,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPer), int(cfg.RequestsPer*2)+1),
		now:     time.Now,
	}
}

// Extract calls the model once. Any transport failure, timeout, or malformed
// response degrades to ErrParse so callers never see a transport error.
func (e *llmExtractor) Extract(ctx context.Context, text string) (*ParsedEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, parseErrorf("fallback rate limit: %v", err)
	}

	now := e.now().In(e.loc)
	prompt := fmt.Sprintf(llmParsePrompt, text, now.Format("2006-01-02 15:04:05"))

	requestBody := map[string]interface{}{
		"model": e.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream":      false,
		"temperature": 0.1,
	}
	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, parseErrorf("marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.cfg.BaseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, parseErrorf("build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, parseErrorf("fallback request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, parseErrorf("read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ [LLM-PARSE] API error (status %d): %s", resp.StatusCode, truncateForLog(body, 200))
		return nil, parseErrorf("fallback API status %d", resp.StatusCode)
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, parseErrorf("parse API response: %v", err)
	}
	if len(apiResponse.Choices) == 0 {
		return nil, parseErrorf("empty fallback response")
	}

	content := stripMarkdownFences(apiResponse.Choices[0].Message.Content)
	var result struct {
		StartTime  string  `json:"start_time"`
		EndTime    string  `json:"end_time"`
		Activity   string  `json:"activity"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, parseErrorf("fallback returned non-JSON content")
	}

	start, err := time.ParseInLocation("2006-01-02T15:04:05", result.StartTime, e.loc)
	if err != nil {
		return nil, parseErrorf("fallback start_time %q: %v", result.StartTime, err)
	}
	end, err := time.ParseInLocation("2006-01-02T15:04:05", result.EndTime, e.loc)
	if err != nil {
		return nil, parseErrorf("fallback end_time %q: %v", result.EndTime, err)
	}
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}
	if !end.After(start) {
		return nil, parseErrorf("fallback produced an empty span")
	}

	confidence := int(result.Confidence * 100)
	if confidence > MaxLLMConfidence {
		confidence = MaxLLMConfidence
	}
	if confidence < 0 {
		confidence = 0
	}

	activity := strings.TrimSpace(result.Activity)
	if activity == "" {
		activity = "其他"
	}

	return &ParsedEntry{
		StartTime:  start,
		EndTime:    end,
		Activity:   activity,
		Confidence: confidence,
	}, nil
}

// stripMarkdownFences removes ```json fences some models wrap around output.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func truncateForLog(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
