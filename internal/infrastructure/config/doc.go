// Package config loads and validates CozyLink configuration.
//
// Configuration is layered, last writer wins:
//
//  1. Compiled-in defaults
//  2. YAML file (configs/config.yaml)
//  3. Environment variables (COZYLINK_*)
//
// # Sections
//
//   - site: installation identity
//   - discovery: broadcast probe knobs, subnet scan list, static addresses,
//     reconciliation interval
//   - session: per-device TCP timeouts and retry budget
//   - poller: periodic state refresh of connected devices
//   - catalog: product list file location
//   - database: SQLite device identity store
//   - mqtt / influxdb: optional integrations
//   - api: local REST surface
//   - logging: level/format/output
//
// Validate() is called by Load(); it rejects out-of-range ports and clamps
// scan intervals below the 60s minimum back to the 300s default.
package config
