package s3archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PlanFox/internal/pkg/env"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2024, 3, 10, 23, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	assert.Equal(t, "plans/2024/03/cs_test_1.html", ObjectKey("cs_test_1", at.Add(-2*time.Hour)))
	assert.Equal(t, "plans/2024/03/seed_7.html", ObjectKey("seed:7", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestLoadConfig(t *testing.T) {
	env.Env = map[string]string{"S3_ARCHIVE_ENABLED": "false"}
	t.Cleanup(func() { env.Env = nil })

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.IsEnabled())

	env.Env = map[string]string{"S3_ARCHIVE_ENABLED": "true", "S3_ACCESS_KEY_ID": "k"}
	_, err = LoadConfig()
	assert.Error(t, err)

	env.Env = map[string]string{
		"S3_ARCHIVE_ENABLED":   "true",
		"S3_ACCESS_KEY_ID":     "k",
		"S3_SECRET_ACCESS_KEY": "s",
		"S3_BUCKET_NAME":       "plans",
	}
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "plans", cfg.BucketName)
}
