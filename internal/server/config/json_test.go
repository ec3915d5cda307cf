package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseJson_OverlaysValues(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempConfig(t, `{
		"endpoint_addr_http": ":9999",
		"database_dsn": "postgres://json/db",
		"secret_key": "json-secret",
		"export_retention": "48h",
		"housekeeping_interval": "30m",
		"s3_root_user": "json-user",
		"s3_root_password": "json-pass",
		"s3_bucket": "json-bucket",
		"s3_region": "ap-south-1",
		"s3_base_endpoint": "http://json:9000/",
		"smtp_addr": "mail.json:587",
		"smtp_from": "json@example.com",
		"smtp_username": "mailer",
		"smtp_password": "mailerpass"
	}`)
	os.Args = []string{"testbin", "-c", path}

	var c Config
	c.LoadDefaults()
	parseJson(&c)

	assert.Equal(t, ":9999", c.EndpointAddrHTTP)
	assert.Equal(t, "postgres://json/db", c.DatabaseDSN)
	assert.Equal(t, "json-secret", c.SecretKey)
	assert.Equal(t, 48*time.Hour, c.ExportRetention)
	assert.Equal(t, 30*time.Minute, c.HousekeepingInterval)
	assert.Equal(t, "json-user", c.S3RootUser)
	assert.Equal(t, "json-bucket", c.S3Bucket)
	assert.Equal(t, "mail.json:587", c.SMTPAddr)
	assert.Equal(t, "mailer", c.SMTPUsername)
}

func TestParseJson_NoFileFlagIsNoop(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	var c Config
	c.LoadDefaults()
	parseJson(&c)

	assert.Equal(t, ":8080", c.EndpointAddrHTTP)
}

func TestParseJson_InvalidFilePanics(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempConfig(t, `{not json`)
	os.Args = []string{"testbin", "-c", path}

	var c Config
	c.LoadDefaults()

	assert.Panics(t, func() { parseJson(&c) })
}
