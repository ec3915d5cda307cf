package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/wayfarerapp/wayfarer-server/internal/flagx"
	"github.com/wayfarerapp/wayfarer-server/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "24h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files; its fields are copied into the runtime Config.
type JsonConfig struct {
	EndpointAddrHTTP     string         `json:"endpoint_addr_http"`
	DatabaseDSN          string         `json:"database_dsn"`
	SecretKey            string         `json:"secret_key"`
	ExportRetention      timex.Duration `json:"export_retention"`
	HousekeepingInterval timex.Duration `json:"housekeeping_interval"`
	S3RootUser           string         `json:"s3_root_user"`
	S3RootPassword       string         `json:"s3_root_password"`
	S3Bucket             string         `json:"s3_bucket"`
	S3Region             string         `json:"s3_region"`
	S3BaseEndpoint       string         `json:"s3_base_endpoint"`
	SMTPAddr             string         `json:"smtp_addr"`
	SMTPFrom             string         `json:"smtp_from"`
	SMTPUsername         string         `json:"smtp_username"`
	SMTPPassword         string         `json:"smtp_password"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics: a broken config file should
// stop the server before it opens any port.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.ExportRetention = time.Duration(c.ExportRetention.Duration)
	config.HousekeepingInterval = time.Duration(c.HousekeepingInterval.Duration)
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.SMTPAddr = c.SMTPAddr
	config.SMTPFrom = c.SMTPFrom
	config.SMTPUsername = c.SMTPUsername
	config.SMTPPassword = c.SMTPPassword
}
