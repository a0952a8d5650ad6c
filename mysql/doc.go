// Package mysql provides a MySQL 8.0+ job message queue for the jobrelay Relay.
//
// Producers Enqueue envelopes, usually inside their own transaction. The consumer
// side uses:
//   - READ COMMITTED isolation (to avoid gap locks)
//   - SELECT ... FOR UPDATE SKIP LOCKED
//   - ORDER BY id ASC (UUID v7 time ordering)
//   - LIMIT for batching
//
// Failed messages stay pending until MaxAttempts is reached and are then marked
// dead. See Schema for the table definition and CleanupMaintainer for periodic
// removal of processed and dead rows.
package mysql
