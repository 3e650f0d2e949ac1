// Package liveness implements the heartbeat/stale-job pair of the overseer.
//
// An Emitter runs inside a worker process and refreshes the heartbeat of the
// job the worker is currently executing. A Monitor runs in a watchdog process
// and resets every running job whose heartbeat is older than
//
//	now - FailedHeartbeatTolerance * HeartbeatInterval
//
// The two never share memory; the Store is their only point of contact.
// A job is dead iff its last heartbeat is strictly before the threshold.
package liveness
