package utils

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	ContentTypeText   = "text/plain; charset=utf-8"
	ContentTypeBinary = "application/octet-stream"
)

var textExtensions = map[string]struct{}{
	".md":       {},
	".markdown": {},
	".txt":      {},
	".yaml":     {},
	".yml":      {},
	".toml":     {},
}

// DetectContentType sniffs the file at path. Known text extensions skip the read.
func DetectContentType(path string) string {
	if isTextLike(path) {
		return ContentTypeText
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return ContentTypeBinary
	}
	return mtype.String()
}

// IsTextFile reports whether the file holds text that can be synced as a note
func IsTextFile(path string) bool {
	if isTextLike(path) {
		return true
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func isTextLike(path string) bool {
	_, ok := textExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}
