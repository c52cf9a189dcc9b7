package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Generator invokes the text-generation model. A call may block for
// seconds; cancellation happens only through ctx. Callers never assume
// success without the retry wrapper around them.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type GenerateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type GenerateResponse struct {
	Response string `json:"response"`
}

// OllamaGenerator calls the Ollama generate endpoint. Both the plain
// single-object response and the NDJSON stream form are accepted.
type OllamaGenerator struct {
	apiURL string
	model  string
	system string
	client *http.Client
}

func NewOllamaGenerator(apiURL, model, system string) *OllamaGenerator {
	return &OllamaGenerator{
		apiURL: apiURL,
		model:  model,
		system: system,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

// NewGenerator builds the generation client from the environment.
func NewGenerator() Generator {
	return NewOllamaGenerator(
		os.Getenv("LLM_URL"),
		os.Getenv("LLM_MODEL"),
		os.Getenv("LLM_SYSTEM_PROMPT"),
	)
}

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(GenerateRequest{
		Model:  g.model,
		System: g.system,
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err == nil && genResp.Response != "" {
		return genResp.Response, nil
	}

	// Streamed responses arrive as one JSON object per line.
	var output string
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var chunk GenerateResponse
		if err := decoder.Decode(&chunk); err != nil {
			break
		}
		output += chunk.Response
	}
	if output == "" {
		return "", fmt.Errorf("llm returned an empty response")
	}
	return output, nil
}
