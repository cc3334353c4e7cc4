// Package influxdb writes bridge capacity and apply outcome points to
// InfluxDB v2 so bridge growth can be graphed over time.
//
// Measurements:
//
//	bridge_capacity  tags: bridge          fields: entities, capacity, headroom, utilisation
//	apply_outcome    tags: state, dry_run  fields: bridges, entities, duration_ms, backup_restored, service_running
//
// Writes are non-blocking and batched; Close flushes anything pending.
// InfluxDB is optional and a failed Connect is reported as a warning by callers.
package influxdb
