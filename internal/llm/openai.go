package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const openaiAPIURL = "https://api.openai.com/v1/chat/completions"

// Response markers. Detection and verification responses are free-form text
// parsed for a leading marker rather than JSON - short markers survive
// model formatting quirks better on small fast models.
const (
	claimMarker      = "CLAIM:"
	correctionMarker = "CORRECTION:"
)

// OpenAIClient implements the Client interface using OpenAI's API.
// Detection runs as a single-shot completion on a small fast model;
// verification streams from a search-capable model so the knowledge lookup
// happens server-side.
type OpenAIClient struct {
	apiKey      string
	detectModel string
	verifyModel string
	httpClient  *http.Client
}

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey      string
	DetectModel string // e.g., "gpt-4o-mini"
	VerifyModel string // e.g., "gpt-4o-search-preview"
	HTTPClient  *http.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	detectModel := cfg.DetectModel
	if detectModel == "" {
		detectModel = "gpt-4o-mini"
	}
	verifyModel := cfg.VerifyModel
	if verifyModel == "" {
		verifyModel = "gpt-4o-search-preview"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OpenAIClient{
		apiKey:      cfg.APIKey,
		detectModel: detectModel,
		verifyModel: verifyModel,
		httpClient:  httpClient,
	}
}

// chatRequest represents an OpenAI chat completion request.
type chatRequest struct {
	Model            string         `json:"model"`
	Messages         []chatMessage  `json:"messages"`
	Stream           bool           `json:"stream,omitempty"`
	Temperature      float64        `json:"temperature,omitempty"`
	MaxTokens        int            `json:"max_tokens,omitempty"`
	WebSearchOptions map[string]any `json:"web_search_options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse represents an OpenAI chat completion response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// DetectClaim asks the detection model whether the newest segment contains
// a checkable factual claim. Returns "" when it does not.
func (c *OpenAIClient) DetectClaim(ctx context.Context, recentContext []string, segment string) (string, error) {
	var user strings.Builder
	user.WriteString("Recent transcript:\n")
	for _, line := range recentContext {
		user.WriteString("- ")
		user.WriteString(line)
		user.WriteString("\n")
	}
	user.WriteString("\nNewest line:\n")
	user.WriteString(segment)

	req := chatRequest{
		Model: c.detectModel,
		Messages: []chatMessage{
			{Role: "system", Content: DetectionPrompt},
			{Role: "user", Content: user.String()},
		},
		Temperature: 0.1,
		MaxTokens:   60,
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		return "", err
	}

	return parseMarker(content, claimMarker), nil
}

// VerifyClaim streams a verification from the search-capable model. The
// response may arrive split across many fragments; they are concatenated in
// emission order before the marker is parsed. Returns "" when the claim is
// judged true or unverifiable.
func (c *OpenAIClient) VerifyClaim(ctx context.Context, claim string) (string, error) {
	req := chatRequest{
		Model: c.verifyModel,
		Messages: []chatMessage{
			{Role: "system", Content: VerificationPrompt},
			{Role: "user", Content: "Claim: " + claim},
		},
		Stream:           true,
		MaxTokens:        120,
		WebSearchOptions: map[string]any{},
	}

	fragments, errc, err := c.stream(ctx, req)
	if err != nil {
		return "", err
	}

	var full strings.Builder
	for fragment := range fragments {
		full.WriteString(fragment)
	}

	// A transport failure mid-stream leaves the buffer truncated; refuse
	// to parse it rather than whisper a cut-off correction.
	if err := <-errc; err != nil {
		return "", err
	}

	return parseMarker(full.String(), correctionMarker), nil
}

// parseMarker returns the text after marker on the first line that carries
// it, or "" when the response declined (NONE/TRUE or anything unmarked).
func parseMarker(content, marker string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, marker); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// complete performs a non-streaming chat completion and returns the content.
func (c *OpenAIClient) complete(ctx context.Context, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", openaiAPIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("OpenAI API error: %s - %s", resp.Status, string(respBody))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// stream performs a streaming chat completion and returns a channel of
// content fragments in emission order. The error channel reports a read
// failure after the fragment channel closes; a mid-stream failure means
// the fragments received so far are incomplete.
func (c *OpenAIClient) stream(ctx context.Context, req chatRequest) (<-chan string, <-chan error, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", openaiAPIURL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, nil, fmt.Errorf("OpenAI API error: %s - %s", resp.Status, string(respBody))
	}

	ch := make(chan string, 100)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()

			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}

			var streamResp chatResponse
			if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
				continue
			}

			if len(streamResp.Choices) > 0 {
				content := streamResp.Choices[0].Delta.Content
				if content != "" {
					select {
					case <-ctx.Done():
						return
					case ch <- content:
					}
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errc <- fmt.Errorf("stream read error: %w", err)
		}
	}()

	return ch, errc, nil
}
