package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, cfg.Tickets.EditWindow)
	assert.Equal(t, 7*24*time.Hour, cfg.Attachments.TokenTTL)
	assert.Equal(t, int64(10<<20), cfg.Attachments.MaxSizeBytes)
	assert.Equal(t, "local", cfg.Attachments.Backend)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TICKET_EDIT_WINDOW", "36h")
	t.Setenv("ATTACHMENT_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "desk")
	t.Setenv("ATTACHMENT_MAX_SIZE_BYTES", "2048")
	t.Setenv("APP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 36*time.Hour, cfg.Tickets.EditWindow)
	assert.Equal(t, "s3", cfg.Attachments.Backend)
	assert.Equal(t, "desk", cfg.S3.Bucket)
	assert.Equal(t, int64(2048), cfg.Attachments.MaxSizeBytes)
	assert.Equal(t, "0.0.0.0:9090", cfg.App.Addr())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"TICKET_EDIT_WINDOW":   "a day",
		"ATTACHMENT_TOKEN_TTL": "7d",
		"ATTACHMENT_BACKEND":   "ftp",
		"REDIS_DB":             "zero",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
