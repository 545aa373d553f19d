// Package attachment validates uploaded files against their real content,
// stores them under opaque names and issues download tokens.
package attachment

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	apperrors "github.com/helpline-labs/support-desk/pkg/util"
)

// DefaultMaxSizeBytes is the upload limit when none is configured.
const DefaultMaxSizeBytes int64 = 10 << 20

// prefixLen is how many leading bytes are inspected; minPrefixLen is the
// fewest that can identify any known signature.
const (
	prefixLen    = 8
	minPrefixLen = 3
)

// Rejection names why a file was refused.
type Rejection string

const (
	RejectSizeExceeded          Rejection = "SIZE_EXCEEDED"
	RejectExtensionNotAllowed   Rejection = "EXTENSION_NOT_ALLOWED"
	RejectContentTypeNotAllowed Rejection = "CONTENT_TYPE_NOT_ALLOWED"
	RejectContentUndetectable   Rejection = "CONTENT_UNDETECTABLE"
	RejectContentTypeMismatch   Rejection = "CONTENT_TYPE_MISMATCH"
	RejectContentUnreadable     Rejection = "CONTENT_UNREADABLE"
)

type signature struct {
	contentType string
	magic       []byte
}

var signatures = []signature{
	{contentType: "image/png", magic: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{contentType: "image/jpeg", magic: []byte{0xFF, 0xD8, 0xFF}},
	{contentType: "application/pdf", magic: []byte{0x25, 0x50, 0x44, 0x46}},
}

var (
	allowedExtensions   = []string{".pdf", ".png", ".jpg", ".jpeg"}
	allowedContentTypes = []string{"application/pdf", "image/png", "image/jpeg", "image/jpg"}
)

// Result is the outcome of validating one upload.
type Result struct {
	Valid               bool
	Rejection           Rejection
	Message             string
	DetectedContentType string
}

// Err returns nil for valid files, otherwise a validation error whose message
// tells the uploader what to fix.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return apperrors.NewValidationError(r.Message, map[string]any{"reason": string(r.Rejection)})
}

func reject(reason Rejection, format string, args ...any) Result {
	return Result{Rejection: reason, Message: fmt.Sprintf(format, args...)}
}

// Validator applies the upload policy.
type Validator struct {
	maxSize int64
}

// NewValidator builds a validator; maxSize <= 0 selects DefaultMaxSizeBytes.
func NewValidator(maxSize int64) *Validator {
	if maxSize <= 0 {
		maxSize = DefaultMaxSizeBytes
	}
	return &Validator{maxSize: maxSize}
}

// MaxSize returns the configured limit in bytes.
func (v *Validator) MaxSize() int64 {
	return v.maxSize
}

// Validate checks size, extension, declared type and content signature in
// that order, stopping at the first failure. The stream position is left
// where it was found.
func (v *Validator) Validate(r io.ReadSeeker, fileName, contentType string, size int64) Result {
	if size > v.maxSize {
		return reject(RejectSizeExceeded, "File size %d bytes exceeds maximum allowed size of %d bytes.", size, v.maxSize)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if !contains(allowedExtensions, ext) {
		return reject(RejectExtensionNotAllowed, "File extension '%s' is not allowed. Allowed extensions: %s",
			ext, strings.Join(allowedExtensions, ", "))
	}

	declared := strings.ToLower(strings.TrimSpace(contentType))
	if !contains(allowedContentTypes, declared) {
		return reject(RejectContentTypeNotAllowed, "Content type '%s' is not allowed. Allowed types: %s",
			contentType, strings.Join(allowedContentTypes, ", "))
	}

	prefix, err := readPrefix(r)
	if err != nil {
		return reject(RejectContentUnreadable, "File content could not be read.")
	}
	if len(prefix) < minPrefixLen {
		return reject(RejectContentUndetectable, "File is too small to determine type.")
	}

	detected := DetectContentType(prefix)
	if detected == "" {
		return reject(RejectContentUndetectable, "File type could not be determined from content.")
	}
	if !strings.EqualFold(detected, declared) {
		result := reject(RejectContentTypeMismatch, "Content type mismatch. Expected: %s, Detected: %s", contentType, detected)
		result.DetectedContentType = detected
		return result
	}

	return Result{Valid: true, DetectedContentType: detected}
}

// DetectContentType classifies a byte prefix by signature. It returns an
// empty string when nothing matches.
func DetectContentType(prefix []byte) string {
	for _, sig := range signatures {
		if bytes.HasPrefix(prefix, sig.magic) {
			return sig.contentType
		}
	}
	return ""
}

// readPrefix reads up to prefixLen bytes from the start of the stream and
// seeks back to the original offset.
func readPrefix(r io.ReadSeeker) ([]byte, error) {
	origin, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	buf := make([]byte, prefixLen)
	n, readErr := io.ReadFull(r, buf)

	if _, err := r.Seek(origin, io.SeekStart); err != nil {
		return nil, err
	}
	if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
		return nil, readErr
	}
	return buf[:n], nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
