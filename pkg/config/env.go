package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envBindings maps viper keys to the environment variables that feed them,
// in order of precedence.
var envBindings = map[string][]string{
	"token":    {"AZION_TOKEN", "EDGESQL_TOKEN"},
	"url":      {"AZION_BASE_URL", "EDGESQL_URL"},
	"database": {"EDGESQL_DATABASE"},

	"turso.url":            {"TURSO_DATABASE_URL"},
	"turso.auth_token":     {"TURSO_AUTH_TOKEN"},
	"turso.encryption_key": {"TURSO_ENCRYPTION_KEY"},

	"kaggle.username": {"KAGGLE_USERNAME"},
	"kaggle.key":      {"KAGGLE_KEY"},

	"snowflake.account":   {"SNOWFLAKE_ACCOUNT"},
	"snowflake.user":      {"SNOWFLAKE_USER"},
	"snowflake.password":  {"SNOWFLAKE_PASSWORD"},
	"snowflake.warehouse": {"SNOWFLAKE_WAREHOUSE"},
	"snowflake.role":      {"SNOWFLAKE_ROLE"},

	"s3.region":            {"AWS_REGION"},
	"s3.endpoint":          {"EDGESQL_S3_ENDPOINT"},
	"gcs.credentials_file": {"GOOGLE_APPLICATION_CREDENTIALS"},
}

var relationalFields = []string{"username", "password", "host", "port", "ssl_ca", "ssl_cert", "ssl_key", "ssl_verify_cert"}

// NewViper returns a viper instance with every credential variable bound.
// The CLI binds its flags to the same instance so flags win over env.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, envs := range envBindings {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
	for _, prefix := range []string{"mysql", "postgres"} {
		for _, field := range relationalFields {
			_ = v.BindEnv(prefix+"."+field, strings.ToUpper(fmt.Sprintf("%s_%s", prefix, field)))
		}
	}
	return v
}

// ApplyEnv overlays every value set in v onto the config.
func (c *Config) ApplyEnv(v *viper.Viper) {
	setString(v, "token", &c.Endpoint.Token)
	setString(v, "url", &c.Endpoint.BaseURL)
	setString(v, "database", &c.Endpoint.Database)

	applyRelational(v, "mysql", &c.Sources.MySQL)
	applyRelational(v, "postgres", &c.Sources.Postgres)

	setString(v, "snowflake.account", &c.Sources.Snowflake.Account)
	setString(v, "snowflake.user", &c.Sources.Snowflake.User)
	setString(v, "snowflake.password", &c.Sources.Snowflake.Password)
	setString(v, "snowflake.warehouse", &c.Sources.Snowflake.Warehouse)
	setString(v, "snowflake.role", &c.Sources.Snowflake.Role)

	setString(v, "turso.url", &c.Sources.Turso.URL)
	setString(v, "turso.auth_token", &c.Sources.Turso.AuthToken)
	setString(v, "turso.encryption_key", &c.Sources.Turso.EncryptionKey)

	setString(v, "kaggle.username", &c.Sources.Kaggle.Username)
	setString(v, "kaggle.key", &c.Sources.Kaggle.Key)

	setString(v, "s3.region", &c.Sources.Objects.S3Region)
	setString(v, "s3.endpoint", &c.Sources.Objects.S3Endpoint)
	setString(v, "gcs.credentials_file", &c.Sources.Objects.GCSCredentialsFile)

	setString(v, "log_level", &c.Observability.LogLevel)
	setString(v, "metrics_addr", &c.Observability.MetricsAddr)
	if v.IsSet("trace") {
		c.Observability.EnableTracing = v.GetBool("trace")
	}
}

func applyRelational(v *viper.Viper, prefix string, rc *RelationalConfig) {
	setString(v, prefix+".username", &rc.Username)
	setString(v, prefix+".password", &rc.Password)
	setString(v, prefix+".host", &rc.Host)
	setString(v, prefix+".ssl_ca", &rc.SSLCA)
	setString(v, prefix+".ssl_cert", &rc.SSLCert)
	setString(v, prefix+".ssl_key", &rc.SSLKey)
	if v.IsSet(prefix + ".port") {
		if port := v.GetInt(prefix + ".port"); port > 0 {
			rc.Port = port
		}
	}
	if v.IsSet(prefix + ".ssl_verify_cert") {
		rc.SSLVerifyCert = v.GetBool(prefix + ".ssl_verify_cert")
	}
}

func setString(v *viper.Viper, key string, dst *string) {
	if !v.IsSet(key) {
		return
	}
	if s := v.GetString(key); s != "" {
		*dst = s
	}
}
