// Package config handles configuration loading for registryd.
//
// Configuration is loaded from YAML files with ${VAR_NAME} environment
// variable expansion, time.ParseDuration syntax for durations, defaulting,
// and validation.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  public_url: ""                 # self-addressed sync callback base
//
//	database:
//	  path: "/var/lib/registryd/registry.db"
//
//	auth:
//	  jwt_secret: "${REGISTRY_JWT_SECRET}"
//
//	reputation:
//	  base_url: "http://localhost:9090"
//	  service_id: "reputation.service"
//	  request_timeout: "10s"
//
//	token:
//	  base_url: "http://localhost:9091"
//	  min_balance: 100               # advisory; registration is not gated
//
//	sync:
//	  max_retries: 3
//	  retry_backoff: "2s"
//	  job_retention: "24h"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
