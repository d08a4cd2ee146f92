package dispatch

import (
	"errors"
	"fmt"

	backoff "github.com/cenkalti/backoff/v4"
)

// ErrQueueFull reports transient back-pressure: the shard queue was full
// when Submit tried to enqueue a job.
var ErrQueueFull = errors.New("shard queue full")

// ErrExecutorClosed reports a permanent condition: the executor has been
// stopped and will accept no further work.
var ErrExecutorClosed = errors.New("shard executor closed")

// QueueFullError carries diagnostics while satisfying errors.Is(_, ErrQueueFull).
type QueueFullError struct {
	Shard    int // 0 ≤ Shard < cfg.Shards
	Length   int // queue length at timeout
	Capacity int // cap(queue)
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("shard queue %d full (len=%d cap=%d)", e.Shard, e.Length, e.Capacity)
}

func (e *QueueFullError) Is(target error) bool { return target == ErrQueueFull }

// PanicError wraps a value recovered from a panicking job.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("job panic: %v", e.Value) }

// Permanent marks err as not worth retrying.
func Permanent(err error) error { return backoff.Permanent(err) }

// isIrrecoverable reports whether a job error should skip retries.
func isIrrecoverable(err error) bool {
	var pe *backoff.PermanentError
	if errors.As(err, &pe) {
		return true
	}
	var panicErr *PanicError
	return errors.As(err, &panicErr)
}
