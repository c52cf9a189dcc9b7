// Package extract turns uploaded files into plain text. PDFs go
// through an external converter service; everything else is treated as
// text when it plausibly is.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"arx/types"
)

var textExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".csv": true,
	".log": true,
}

type Service struct {
	converterURL string
	client       *http.Client
	cropTop      float64
	cropBottom   float64
}

func NewService() *Service {
	return &Service{
		converterURL: os.Getenv("EXTRACTOR_URL"),
		client:       &http.Client{Timeout: 120 * time.Second},
		cropTop:      envFloat("PDF_CROP_TOP", 0),
		cropBottom:   envFloat("PDF_CROP_BOTTOM", 0),
	}
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var f float64
	if _, err := fmt.Sscanf(v, "%f", &f); err != nil {
		return def
	}
	return f
}

// Extract returns the textual content of data. Unsupported or binary
// content comes back as an error so callers can skip the file.
func (s *Service) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf":
		return s.extractPDF(ctx, filename, data)
	case textExtensions[ext]:
		return string(data), nil
	default:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("unsupported file type %q", ext)
		}
		return string(data), nil
	}
}

func (s *Service) extractPDF(ctx context.Context, filename string, data []byte) (string, error) {
	if s.converterURL == "" {
		return "", fmt.Errorf("no PDF converter configured")
	}

	tmp, err := os.CreateTemp("", "arx-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	tmp.Close()

	path := tmp.Name()
	if s.cropTop > 0 || s.cropBottom > 0 {
		cropped := path + ".cropped.pdf"
		if err := cropHeaderFooter(path, cropped, s.cropTop, s.cropBottom); err != nil {
			return "", err
		}
		defer os.Remove(cropped)
		path = cropped
	}

	return s.convertToMarkdown(ctx, path, filename)
}

func (s *Service) convertToMarkdown(ctx context.Context, path, filename string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.converterURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("converter request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("converter returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var conv types.ConverterResponse
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return "", fmt.Errorf("failed to decode converter response: %w", err)
	}
	if strings.TrimSpace(conv.Document.MdContent) == "" {
		return "", fmt.Errorf("converter returned no content for %s", filename)
	}
	return conv.Document.MdContent, nil
}
