// Package config provides configuration management for nebula-hub.
//
// A single Config structure describes the whole service: logging, the sync
// batch ceiling, adapter pool defaults, the job queue, metrics, tracing, the
// systems registered at start-up and the field-mapping file.
//
// # Usage
//
//	cfg, err := config.Load("nebula-hub.yaml")
//	if err != nil {
//		return err
//	}
//
// Values are layered: Default(), then the YAML file, then environment
// variables prefixed with NEBULA_HUB_ (dots become underscores, so
// queue.redis_addr is NEBULA_HUB_QUEUE_REDIS_ADDR).
//
// # Environment Variable Substitution
//
// YAML files may reference environment variables with ${VAR_NAME}; they are
// substituted before parsing. This keeps credentials out of files:
//
//	systems:
//	  - id: crm
//	    connection:
//	      kind: postgresql
//	      host: db.internal
//	      password: ${CRM_DB_PASSWORD}
//
// LoadFile and SaveFile apply the same substitution to arbitrary YAML
// documents such as the field-mapping file.
package config
