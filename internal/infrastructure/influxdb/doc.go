// Package influxdb records device telemetry in InfluxDB v2.
//
// Three measurements flow out of the reconciliation and polling loops:
// datapoints (per-datapoint values from state reads), signal (wifi RSSI at
// identification), and availability (connect/disconnect transitions).
// Writes are batched and non-blocking; telemetry is best-effort and never
// blocks device I/O.
package influxdb
