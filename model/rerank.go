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

// Scorer rates the relevance of candidate texts against a query.
// Higher is more relevant.
type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

type ScoreRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type ScoreResponse struct {
	Scores []float64 `json:"scores"`
}

// HTTPScorer calls a cross-encoder scoring service over HTTP.
type HTTPScorer struct {
	apiURL string
	client *http.Client
}

func NewHTTPScorer(apiURL string) *HTTPScorer {
	return &HTTPScorer{
		apiURL: apiURL,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// NewScorer builds the reranking client from the environment.
func NewScorer() Scorer {
	return NewHTTPScorer(os.Getenv("RERANKER_URL"))
}

func (s *HTTPScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(ScoreRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reranker API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var scoreResp ScoreResponse
	if err := json.Unmarshal(respBody, &scoreResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(scoreResp.Scores) != len(texts) {
		return nil, fmt.Errorf("reranker returned %d scores for %d texts", len(scoreResp.Scores), len(texts))
	}
	return scoreResp.Scores, nil
}
