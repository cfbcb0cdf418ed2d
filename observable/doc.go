// Package observable implements the mirrored collection primitives used to
// publish backend and wallet state across executor boundaries: a change on
// one affinity.Executor is snapshotted and redelivered on a listener's own
// executor, so the listener never races the source and the source is free
// to keep mutating immediately after notifying.
package observable
