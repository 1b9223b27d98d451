package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama synthesizes answers through an Ollama server's /api/generate
// endpoint.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllama creates a synthesizer backed by the given Ollama host and model.
func NewOllama(baseURL, model string, timeout time.Duration) *Ollama {
	return &Ollama{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Synthesize sends the prompt to the model and collects the full response.
// Every failure wraps ErrSynthesisFailed so callers can classify it without
// inspecting transport details.
func (o *Ollama) Synthesize(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrSynthesisFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrSynthesisFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: status %d: %s", ErrSynthesisFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// With streaming disabled the body is a single object, but a decoder
	// loop also tolerates servers that stream regardless.
	var out strings.Builder
	decoder := json.NewDecoder(resp.Body)
	for {
		var chunk generateResponse
		if err := decoder.Decode(&chunk); err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("%w: decode response: %v", ErrSynthesisFailed, err)
		}
		out.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}

	answer := out.String()
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("%w: model returned empty response", ErrSynthesisFailed)
	}
	return answer, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}
