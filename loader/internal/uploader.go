package internal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"arx/loader/types"
)

// Uploader submits dropped files to the ingestion endpoint as a
// multipart form, the same way an interactive client attaches them.
type Uploader struct {
	cfg    types.Config
	client *http.Client
}

func NewUploader(cfg types.Config) *Uploader {
	return &Uploader{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (u *Uploader) Upload(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}

	fields := map[string]string{
		"session_id": u.cfg.SessionID,
		"user_id":    u.cfg.UserID,
		"use_rag":    "false",
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return err
		}
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.UploadURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload rejected with %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
