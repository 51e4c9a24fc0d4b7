package config

import (
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
)

// DefaultKaggleAPI is the Kaggle public API root.
const DefaultKaggleAPI = "https://www.kaggle.com/api/v1"

// SourcesConfig holds credentials for every source kind.
type SourcesConfig struct {
	MySQL     RelationalConfig `yaml:"mysql" json:"mysql"`
	Postgres  RelationalConfig `yaml:"postgres" json:"postgres"`
	Snowflake SnowflakeConfig  `yaml:"snowflake" json:"snowflake"`
	Turso     TursoConfig      `yaml:"turso" json:"turso"`
	Kaggle    KaggleConfig     `yaml:"kaggle" json:"kaggle"`
	Objects   ObjectConfig     `yaml:"objects" json:"objects"`
}

// RelationalConfig carries connection parameters for a MySQL or PostgreSQL server.
type RelationalConfig struct {
	Username      string `yaml:"username" json:"username"`
	Password      string `yaml:"password" json:"password"`
	Host          string `yaml:"host" json:"host"`
	Port          int    `yaml:"port" json:"port"`
	SSLCA         string `yaml:"ssl_ca" json:"ssl_ca"`
	SSLCert       string `yaml:"ssl_cert" json:"ssl_cert"`
	SSLKey        string `yaml:"ssl_key" json:"ssl_key"`
	SSLVerifyCert bool   `yaml:"ssl_verify_cert" json:"ssl_verify_cert"`
}

// Complete reports whether the minimum credentials are present.
func (r *RelationalConfig) Complete() bool {
	return r.Username != "" && r.Password != "" && r.Host != ""
}

// UseTLS is true for remote hosts with a full set of certificate paths.
// Local connections never use TLS.
func (r *RelationalConfig) UseTLS() bool {
	if r.SSLCA == "" || r.SSLCert == "" || r.SSLKey == "" {
		return false
	}
	return IsRemoteHost(r.Host)
}

// IsRemoteHost reports whether host is something other than the loopback.
func IsRemoteHost(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1", "":
		return false
	}
	return true
}

// SnowflakeConfig carries the account DSN pieces for Snowflake.
type SnowflakeConfig struct {
	Account   string `yaml:"account" json:"account"`
	User      string `yaml:"user" json:"user"`
	Password  string `yaml:"password" json:"password"`
	Warehouse string `yaml:"warehouse" json:"warehouse"`
	Role      string `yaml:"role" json:"role"`
}

// TursoConfig locates a libSQL/Turso replica.
type TursoConfig struct {
	URL           string `yaml:"url" json:"url"`
	AuthToken     string `yaml:"auth_token" json:"auth_token"`
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"`
}

// KaggleConfig holds Kaggle API credentials.
type KaggleConfig struct {
	Username string `yaml:"username" json:"username"`
	Key      string `yaml:"key" json:"key"`
	APIURL   string `yaml:"api_url" json:"api_url"`
	// ConfigPath overrides ~/.kaggle/kaggle.json
	ConfigPath string `yaml:"config_path" json:"config_path"`
}

// Resolve returns the username and key, falling back to kaggle.json when
// neither is set explicitly.
func (k *KaggleConfig) Resolve() (string, string, error) {
	if k.Username != "" && k.Key != "" {
		return k.Username, k.Key, nil
	}

	path := k.ConfigPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		path = filepath.Join(home, ".kaggle", "kaggle.json")
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		return "", "", err
	}

	var creds struct {
		Username string `json:"username"`
		Key      string `json:"key"`
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", "", err
	}
	return creds.Username, creds.Key, nil
}

// ObjectConfig configures remote object fetches for file sources.
type ObjectConfig struct {
	// S3Region overrides the region from the shared AWS config
	S3Region string `yaml:"s3_region" json:"s3_region"`
	// S3Endpoint targets S3-compatible stores such as MinIO
	S3Endpoint string `yaml:"s3_endpoint" json:"s3_endpoint"`
	// GCSCredentialsFile is a service account JSON file; empty uses ADC
	GCSCredentialsFile string `yaml:"gcs_credentials_file" json:"gcs_credentials_file"`
}
