// Package config provides configuration for gluejdbc.
//
// A single Config structure carries every tunable, organized into sections:
//
//   - Catalog: AWS region, shared-config profile and endpoint override for Glue
//   - Performance: default batch and sample sizes for table reads
//   - Timeouts: connection establishment and per-query deadlines
//   - Pool: database/sql pool knobs passed through to the driver pool
//   - Reliability: caller-side backoff applied when the catalog throttles
//   - Observability: log level and encoding, metrics and tracing switches
//
// # Usage
//
//	cfg := config.Default()
//	if err := config.Load("gluejdbc.yaml", cfg); err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
// # Environment Variable Substitution
//
// Load replaces ${VAR_NAME} with the value of the environment variable before
// parsing, so secrets and regions stay out of the file:
//
//	catalog:
//	  region: ${AWS_REGION}
//	  profile: ${AWS_PROFILE}
//
// Unset variables substitute as the empty string. Fields missing from the file
// keep the value already present in the target, so loading into Default()
// layers the file over the defaults.
package config
