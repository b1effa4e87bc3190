package errors

import (
	"path/filepath"
	"strings"
	"unicode"
)

// maxPathLength bounds source identifiers and relative paths.
const maxPathLength = 500

// ValidatePath validates a relative, slash-separated path for safety.
// It prevents path traversal and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
		}
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// ValidateSourceID validates a slot's source identifier.
// Identifiers are store-relative paths, so the path rules apply, with the
// code reported as INVALID_INPUT to keep it apart from filesystem paths the
// user typed on the command line.
func ValidateSourceID(id string) error {
	if err := ValidatePath(id); err != nil {
		return Wrap(ErrCodeInvalidInput, err, "invalid source identifier %q", id)
	}
	return nil
}

// ValidateOutputPath checks that an output path names a PNG file.
func ValidateOutputPath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "output path cannot be empty")
	}
	if !strings.EqualFold(filepath.Ext(path), ".png") {
		return New(ErrCodeInvalidFormat, "output must be a .png file, got %q", filepath.Base(path))
	}
	return nil
}
