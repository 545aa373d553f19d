package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpline-labs/support-desk/internal/attachment"
	"github.com/helpline-labs/support-desk/internal/domain"
	"github.com/helpline-labs/support-desk/internal/events"
	apperrors "github.com/helpline-labs/support-desk/pkg/util"
)

var (
	pngData  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}
	jpegData = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46}
)

func pngUpload(name string) UploadInput {
	return UploadInput{
		Content:     bytes.NewReader(pngData),
		FileName:    name,
		ContentType: "image/png",
		Size:        int64(len(pngData)),
	}
}

func TestUpload_StoresUnderOpaqueName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tk := f.seedTicket(t, nil)

	att, err := f.attachments.Upload(ctx, customerP, tk.ID, pngUpload("../../evil.png"))
	require.NoError(t, err)

	assert.NotContains(t, att.StoredFileName, "/")
	assert.NotContains(t, att.StoredFileName, "\\")
	assert.NotContains(t, att.StoredFileName, "evil")
	assert.True(t, strings.HasSuffix(att.StoredFileName, ".png"))
	assert.Equal(t, "evil.png", att.OriginalFileName)
	assert.Equal(t, "image/png", att.ContentType)
	assert.Equal(t, customerP.ID, att.UploadedByID)
	assert.Equal(t, int64(len(pngData)), att.SizeBytes)
	assert.Len(t, att.DownloadToken, 43)
	require.NotNil(t, att.TokenExpiresAt)
	assert.Equal(t, t0.Add(attachment.DefaultTokenTTL), *att.TokenExpiresAt)

	onDisk, err := os.ReadFile(filepath.Join(f.dir, att.StoredFileName))
	require.NoError(t, err)
	assert.Equal(t, pngData, onDisk)

	_, err = os.Stat(filepath.Join(filepath.Dir(f.dir), "evil.png"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, []events.EventType{events.EventAttachmentUploaded}, f.events.types())
}

func TestUpload_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		principal  domain.Principal
		input      UploadInput
		wantCode   string
		wantReason string
	}{
		{
			name:      "jpeg bytes declared as pdf",
			principal: customerP,
			input: UploadInput{Content: bytes.NewReader(jpegData), FileName: "doc.pdf",
				ContentType: "application/pdf", Size: int64(len(jpegData))},
			wantCode:   apperrors.CodeValidation,
			wantReason: string(attachment.RejectContentTypeMismatch),
		},
		{
			name:      "executable extension",
			principal: customerP,
			input: UploadInput{Content: bytes.NewReader(pngData), FileName: "run.exe",
				ContentType: "image/png", Size: int64(len(pngData))},
			wantCode:   apperrors.CodeValidation,
			wantReason: string(attachment.RejectExtensionNotAllowed),
		},
		{
			name:      "declared size too large",
			principal: customerP,
			input: UploadInput{Content: bytes.NewReader(pngData), FileName: "big.png",
				ContentType: "image/png", Size: attachment.DefaultMaxSizeBytes + 1},
			wantCode:   apperrors.CodeValidation,
			wantReason: string(attachment.RejectSizeExceeded),
		},
		{
			name:      "stranger",
			principal: strangerP,
			input:     pngUpload("shot.png"),
			wantCode:  apperrors.CodeAuthorization,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tk := f.seedTicket(t, nil)

			_, err := f.attachments.Upload(ctx, tt.principal, tk.ID, tt.input)
			require.Error(t, err)
			de := apperrors.ToDomainError(err)
			assert.Equal(t, tt.wantCode, de.Code)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, de.Details["reason"])
			}

			entries, err := os.ReadDir(f.dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestDownload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tk := f.seedTicket(t, nil)
	att, err := f.attachments.Upload(ctx, customerP, tk.ID, pngUpload("shot.png"))
	require.NoError(t, err)

	t.Run("owner with token", func(t *testing.T) {
		dl, err := f.attachments.Download(ctx, customerP, att.ID, att.DownloadToken)
		require.NoError(t, err)
		defer dl.Content.Close()
		body, err := io.ReadAll(dl.Content)
		require.NoError(t, err)
		assert.Equal(t, pngData, body)
	})

	t.Run("agent with token", func(t *testing.T) {
		dl, err := f.attachments.Download(ctx, agentP, att.ID, att.DownloadToken)
		require.NoError(t, err)
		dl.Content.Close()
	})

	t.Run("valid token but foreign customer", func(t *testing.T) {
		_, err := f.attachments.Download(ctx, strangerP, att.ID, att.DownloadToken)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeAuthorization))
	})

	t.Run("wrong token", func(t *testing.T) {
		_, err := f.attachments.Download(ctx, adminP, att.ID, att.DownloadToken+"x")
		assert.True(t, apperrors.IsCode(err, apperrors.CodeAuthorization))
	})

	t.Run("missing attachment", func(t *testing.T) {
		_, err := f.attachments.Download(ctx, adminP, "nope", "x")
		assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	})
}

func TestDownload_ExpiredTokenDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tk := f.seedTicket(t, nil)
	att, err := f.attachments.Upload(ctx, customerP, tk.ID, pngUpload("shot.png"))
	require.NoError(t, err)

	f.clock.Advance(attachment.DefaultTokenTTL - time.Second)
	dl, err := f.attachments.Download(ctx, customerP, att.ID, att.DownloadToken)
	require.NoError(t, err)
	dl.Content.Close()

	f.clock.Advance(time.Second)
	_, err = f.attachments.Download(ctx, customerP, att.ID, att.DownloadToken)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAuthorization))
}

func TestRotateToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tk := f.seedTicket(t, nil)
	att, err := f.attachments.Upload(ctx, customerP, tk.ID, pngUpload("shot.png"))
	require.NoError(t, err)
	oldToken := att.DownloadToken

	_, err = f.attachments.RotateToken(ctx, customerP, att.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAuthorization))

	f.clock.Advance(time.Hour)
	rotated, err := f.attachments.RotateToken(ctx, agentP, att.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldToken, rotated.DownloadToken)
	assert.Equal(t, t0.Add(time.Hour).Add(attachment.DefaultTokenTTL), *rotated.TokenExpiresAt)

	_, err = f.attachments.Download(ctx, customerP, att.ID, oldToken)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAuthorization))

	dl, err := f.attachments.Download(ctx, customerP, att.ID, rotated.DownloadToken)
	require.NoError(t, err)
	dl.Content.Close()
}

func TestDeleteAttachment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tk := f.seedTicket(t, nil)
	att, err := f.attachments.Upload(ctx, customerP, tk.ID, pngUpload("shot.png"))
	require.NoError(t, err)

	err = f.attachments.Delete(ctx, customerP, att.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAuthorization))

	// Bytes already gone is still a successful delete.
	require.NoError(t, os.Remove(filepath.Join(f.dir, att.StoredFileName)))
	require.NoError(t, f.attachments.Delete(ctx, agentP, att.ID))

	list, err := f.attachments.List(ctx, customerP, tk.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	err = f.attachments.Delete(ctx, agentP, att.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "evil.png", displayName("../../evil.png"))
	assert.Equal(t, "evil.png", displayName(`..\..\evil.png`))
	assert.Equal(t, "file", displayName(".."))
	assert.Equal(t, "file", displayName(""))
}
