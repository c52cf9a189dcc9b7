package rag

import (
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// ContentID returns the 128-bit content identity of raw source bytes.
// Identical bytes always map to the same id regardless of filename, so
// re-uploads of the same content are recognized as duplicates.
func ContentID(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// TitleFromFilename derives a display title from an uploaded filename:
// base name without extension, separators replaced with spaces.
func TitleFromFilename(filename string) string {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	if name == "" {
		return "Untitled document"
	}
	return name
}
