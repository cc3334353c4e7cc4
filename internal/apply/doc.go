// Package apply rewrites Home Assistant's HomeKit bridge filters from a
// mapping artifact without ever leaving Home Assistant broken.
//
// A run is an explicit state machine:
//
//	idle ──▶ stopped ──▶ backed-up ──▶ mutated ──▶ validated ──▶ restarted
//	  │         │            │            │            │
//	  └─────────┴────────────┴─────┬──────┴────────────┘
//	                               ▼
//	                             failed
//
// Every edge goes through a guard that rejects transitions not in the table.
// Recovery is tied to the state a failure happens in:
//
//   - idle → stopped fails: nothing was touched. If the service ended up
//     down anyway it is started again.
//   - stopped → backed-up fails: the service is left stopped and the error
//     says so; an operator has to look before anything else happens.
//   - backed-up → mutated fails: the file was not written (or the write was
//     rolled back), so the service is started again.
//   - mutated → validated fails: the backup is restored, digest-checked,
//     and the service is started again.
//   - validated → restarted fails: the backup is restored and one more start
//     is attempted. If that also fails the run ends with the service down
//     and the backup intact.
//
// A cancelled context while stopped, backed-up or mutated is treated as a
// failure of the next transition. Cleanup runs on a detached context bounded
// by the start timeout so an interrupt cannot strand the service.
//
// Dry runs skip the lock, the service and the backup. They compute the same
// per-bridge changes in memory and return a line diff of the file.
//
// Backups are named core.config_entries.backup.YYYYMMDD_HHMMSS, created
// exclusively and never deleted.
package apply
