package internal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MoveToArchive relocates a processed file into a dated subdirectory of
// destRoot. Name collisions get a numeric suffix. Copy-then-remove,
// because the directories may live on different filesystems.
func MoveToArchive(filePath, destRoot string) error {
	destDir := filepath.Join(destRoot, time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))
	counter := 1
	for {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		ext := filepath.Ext(filePath)
		baseName := strings.TrimSuffix(filepath.Base(filePath), ext)
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", baseName, counter, ext))
		counter++
	}

	in, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("error open file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("error create file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("error moving file to archive: %w", err)
	}
	// The archive copy must be fully flushed to disk before the source
	// is deleted.
	if err := out.Close(); err != nil {
		return fmt.Errorf("error closing archive file: %w", err)
	}

	in.Close()
	return os.Remove(filePath)
}

func CreateDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
