package attachment

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/helpline-labs/support-desk/internal/clock"
	apperrors "github.com/helpline-labs/support-desk/pkg/util"
)

// DefaultTokenTTL is how long a freshly issued download token stays valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

const maxNameAttempts = 8

// StoredFile describes bytes written by Store.Save.
type StoredFile struct {
	StorageName    string
	SizeBytes      int64
	Checksum       string
	DownloadToken  string
	TokenExpiresAt time.Time
}

// StoreOptions tunes a Store.
type StoreOptions struct {
	Clock        clock.Clock
	TokenTTL     time.Duration
	MaxSizeBytes int64
}

// Store writes validated uploads to a Backend under generated names.
type Store struct {
	backend  Backend
	clock    clock.Clock
	tokenTTL time.Duration
	maxSize  int64
	newName  func(now time.Time, ext string) string
}

// NewStore builds a Store.
func NewStore(backend Backend, opts StoreOptions) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.MaxSizeBytes <= 0 {
		opts.MaxSizeBytes = DefaultMaxSizeBytes
	}
	return &Store{
		backend:  backend,
		clock:    opts.Clock,
		tokenTTL: opts.TokenTTL,
		maxSize:  opts.MaxSizeBytes,
		newName:  generateStorageName,
	}
}

// Save checksums r, writes it under a fresh name derived only from random
// data and the original extension, and issues a download token. r must
// already have passed Validator.Validate.
func (s *Store) Save(ctx context.Context, r io.ReadSeeker, originalName, contentType string) (*StoredFile, error) {
	origin, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}

	hash, err := blake2b.New256(nil)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	size, err := io.Copy(hash, io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	if size > s.maxSize {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("File size exceeds maximum allowed size of %d bytes.", s.maxSize),
			map[string]any{"reason": string(RejectSizeExceeded)})
	}

	ext := sanitizeExtension(originalName)
	var name string
	for attempt := 0; ; attempt++ {
		if attempt == maxNameAttempts {
			return nil, apperrors.NewConflict("could not allocate a unique storage name", nil)
		}
		if _, err := r.Seek(origin, io.SeekStart); err != nil {
			return nil, apperrors.NewStorageError(err)
		}
		name = s.newName(s.clock.Now(), ext)
		err := s.backend.Create(ctx, name, io.LimitReader(r, size), size, contentType)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrObjectExists) {
			return nil, apperrors.NewStorageError(err)
		}
	}

	token, err := GenerateDownloadToken()
	if err != nil {
		_, _ = s.backend.Remove(ctx, name)
		return nil, apperrors.NewInternalError(err)
	}

	return &StoredFile{
		StorageName:    name,
		SizeBytes:      size,
		Checksum:       hex.EncodeToString(hash.Sum(nil)),
		DownloadToken:  token,
		TokenExpiresAt: s.TokenExpiry(),
	}, nil
}

// Open returns the stored bytes. Names the store did not generate are
// reported as not found.
func (s *Store) Open(ctx context.Context, storageName string) (io.ReadCloser, error) {
	rc, err := s.backend.Open(ctx, storageName)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, apperrors.NewNotFound("attachment file", nil)
		}
		return nil, apperrors.NewStorageError(err)
	}
	return rc, nil
}

// Delete removes stored bytes, reporting false if they were already gone.
func (s *Store) Delete(ctx context.Context, storageName string) (bool, error) {
	removed, err := s.backend.Remove(ctx, storageName)
	if err != nil {
		return false, apperrors.NewStorageError(err)
	}
	return removed, nil
}

// TokenExpiry returns the expiry for a token issued now.
func (s *Store) TokenExpiry() time.Time {
	return s.clock.Now().Add(s.tokenTTL)
}

func generateStorageName(now time.Time, ext string) string {
	return fmt.Sprintf("%d_%s%s", now.Unix(), strings.ReplaceAll(uuid.NewString(), "-", ""), ext)
}

// sanitizeExtension keeps a short lowercase alphanumeric extension and drops
// anything else.
func sanitizeExtension(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
