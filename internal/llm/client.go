// Package llm is a small client for OpenAI-compatible endpoints: chat
// completions (text and vision), embeddings and audio transcriptions.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://ai-proxy.superagi.com/v1"
	DefaultTimeout = 60 * time.Second

	// maxErrorBody caps how much of a failed response is kept in APIError.
	maxErrorBody = 4 * 1024
)

// ErrMissingAPIKey is returned before any request when no credential is set.
var ErrMissingAPIKey = errors.New("missing LLM API key (set AIPROXY_TOKEN)")

// ErrEmptyResponse is returned when the provider answers without choices.
var ErrEmptyResponse = errors.New("llm returned an empty response")

// APIError is a non-2xx answer from the provider.
type APIError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

// Config holds connection settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is safe for concurrent use and holds no per-request state.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: base, apiKey: cfg.APIKey, http: hc}
}

// Message is one chat message. Content is either a string or a []Part.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Part is one element of multi-part (vision) content.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// Text builds a plain text message.
func Text(role, text string) Message {
	return Message{Role: role, Content: text}
}

// Image builds a user message carrying a prompt and an inline image.
func Image(prompt, mimeType string, data []byte) Message {
	url := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	return Message{Role: "user", Content: []Part{
		{Type: "text", Text: prompt},
		{Type: "image_url", ImageURL: &ImageURL{URL: url}},
	}}
}

// ChatRequest is a single chat completion call.
type ChatRequest struct {
	Model    string
	System   string
	Messages []Message
	// JSONMode asks the provider for a JSON object response.
	JSONMode  bool
	MaxTokens int
}

type chatPayload struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Chat returns the content of the first choice.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	msgs := req.Messages
	if req.System != "" {
		msgs = append([]Message{Text("system", req.System)}, msgs...)
	}
	payload := chatPayload{Model: req.Model, Messages: msgs, MaxTokens: req.MaxTokens}
	if req.JSONMode {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var out chatResponse
	if err := c.postJSON(ctx, "/chat/completions", payload, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

type embedPayload struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, model string, inputs []string) ([][]float64, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	var out embedResponse
	if err := c.postJSON(ctx, "/embeddings", embedPayload{Model: model, Input: inputs}, &out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(inputs) {
		return nil, fmt.Errorf("llm embeddings: got %d vectors for %d inputs", len(out.Data), len(inputs))
	}
	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vectors := make([][]float64, len(out.Data))
	for i, d := range out.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// Transcribe uploads audio as multipart form data and returns the text.
func (c *Client) Transcribe(ctx context.Context, model, filename string, audio io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", model); err != nil {
		return "", err
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", err
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := c.do(ctx, "/audio/transcriptions", mw.FormDataContentType(), &body, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", endpoint, err)
	}
	return c.do(ctx, endpoint, "application/json", bytes.NewReader(body), out)
}

func (c *Client) do(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("llm %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Endpoint: endpoint, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
