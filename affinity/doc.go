// Package affinity implements single-threaded, named task queues
// ("affinity executors"). Each executor owns exactly one worker goroutine;
// code that must run serially on a subsystem schedules work through its
// executor rather than taking a lock, and can assert it is already running
// on that executor's goroutine. This is the same single-writer discipline
// lnd's channel state machines and htlcswitch enforce, generalized into a
// standalone reusable primitive.
package affinity
