// services/semantic_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPSemanticMatcher calls a service that accepts {guess, correctAnswer}
// and answers {isCorrect}.
type HTTPSemanticMatcher struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

type semanticMatchRequest struct {
	Guess         string `json:"guess"`
	CorrectAnswer string `json:"correctAnswer"`
}

type semanticMatchResponse struct {
	IsCorrect *bool `json:"isCorrect"`
}

func NewHTTPSemanticMatcher(baseURL, token string, timeout time.Duration) *HTTPSemanticMatcher {
	return &HTTPSemanticMatcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (m *HTTPSemanticMatcher) Match(ctx context.Context, guess, correctAnswer string) (bool, error) {
	jsonData, err := json.Marshal(semanticMatchRequest{Guess: guess, CorrectAnswer: correctAnswer})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL, bytes.NewReader(jsonData))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.Token != "" {
		req.Header.Set("Authorization", "Bearer "+m.Token)
	}

	resp, err := m.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("semantic match returned %d: %.200s", resp.StatusCode, string(body))
	}

	var out semanticMatchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return false, fmt.Errorf("decode semantic match response: %w", err)
	}
	if out.IsCorrect == nil {
		return false, fmt.Errorf("semantic match response missing isCorrect")
	}
	return *out.IsCorrect, nil
}

// ChatSemanticMatcher asks an OpenAI-compatible chat completions endpoint
// to judge the guess and answer in the same {isCorrect} shape.
type ChatSemanticMatcher struct {
	APIURL string
	APIKey string
	Model  string
	Client *http.Client
}

func NewChatSemanticMatcher(apiURL, apiKey, model string, timeout time.Duration) *ChatSemanticMatcher {
	return &ChatSemanticMatcher{
		APIURL: apiURL,
		APIKey: apiKey,
		Model:  model,
		Client: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const matchSystemPrompt = `You judge a live guessing game. The viewer tries to name a secret product.
Decide whether the guess names the same product as the correct answer, accepting synonyms,
translations, brand-free descriptions and small typos, but rejecting merely related products.
Respond with ONLY a JSON object, no markdown: {"isCorrect": true} or {"isCorrect": false}`

func (m *ChatSemanticMatcher) Match(ctx context.Context, guess, correctAnswer string) (bool, error) {
	if m.APIKey == "" {
		return false, ErrValidationServiceUnavailable
	}

	reqBody := chatRequest{
		Model: m.Model,
		Messages: []chatMessage{
			{Role: "system", Content: matchSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Correct answer: %q\nGuess: %q", correctAnswer, guess)},
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.APIURL, bytes.NewReader(jsonBody))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.APIKey)

	resp, err := m.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return false, err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return false, fmt.Errorf("decode chat response (status %d): %w", resp.StatusCode, err)
	}
	if chatResp.Error != nil {
		return false, fmt.Errorf("chat API error: %s", chatResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK || len(chatResp.Choices) == 0 {
		return false, fmt.Errorf("chat API returned %d with %d choices", resp.StatusCode, len(chatResp.Choices))
	}

	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out semanticMatchResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return false, fmt.Errorf("model answered non-JSON: %.100s", content)
	}
	if out.IsCorrect == nil {
		return false, fmt.Errorf("model answer missing isCorrect")
	}
	return *out.IsCorrect, nil
}

// RateLimitedMatcher waits for the limiter before each call. The wait is
// bounded by the caller's deadline; a call that cannot be admitted in time
// fails as unavailable and the validator keeps its local verdict.
type RateLimitedMatcher struct {
	Next    SemanticMatcher
	Limiter *rate.Limiter
}

func NewRateLimitedMatcher(next SemanticMatcher, perSecond float64, burst int) *RateLimitedMatcher {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedMatcher{Next: next, Limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (m *RateLimitedMatcher) Match(ctx context.Context, guess, correctAnswer string) (bool, error) {
	if err := m.Limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("%w: rate limited: %v", ErrValidationServiceUnavailable, err)
	}
	return m.Next.Match(ctx, guess, correctAnswer)
}
