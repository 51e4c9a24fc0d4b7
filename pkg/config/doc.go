// Package config provides the configuration system for EdgeSQL.
//
// A single Config value is built once at startup from defaults, an optional
// YAML file and the environment, and is read-only afterwards. It is threaded
// into every client and connector constructor, so independent imports can
// share it without coordination.
//
// # Sections
//
//   - endpoint: EdgeSQL API location, token and selected database
//   - timeouts: per-request and connection timeouts
//   - reliability: retry backoff, circuit breaker, rate limiting
//   - import: chunk sizing and type sampling
//   - sources: credentials for relational, replica, dataset and object sources
//   - observability: logging, tracing and metrics
//
// # File format
//
//	endpoint:
//	  token: ${AZION_TOKEN}
//	  database: analytics
//	import:
//	  max_payload_bytes: 1048576
//	  max_chunk_rows: 5000
//	sources:
//	  postgres:
//	    host: db.internal
//	    username: ${POSTGRES_USERNAME}
//	    password: ${POSTGRES_PASSWORD}
//
// # Environment
//
// NewViper binds the variables the original shell used (AZION_TOKEN,
// MYSQL_HOST, TURSO_DATABASE_URL, KAGGLE_KEY and so on). ApplyEnv overlays
// whatever is set onto a Config.
package config
