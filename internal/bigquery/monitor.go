package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrMonitorTimeout reports that the attempt cap was exhausted while the
// load job was still running. It is distinct from a load failure reported
// by the warehouse: callers must be able to tell "the load failed" from
// "we stopped watching".
var ErrMonitorTimeout = errors.New("load job monitoring timed out")

var errStillRunning = errors.New("load job still running")

// StatusChecker is the poll side of the warehouse API.
type StatusChecker interface {
	GetJobStatus(ctx context.Context, projectID, jobID string) (*JobState, error)
}

// Monitor polls an external load job until it reaches a terminal state or
// the attempt cap runs out. A transient status-check failure is retried
// with a shorter backoff against the same cap.
type Monitor struct {
	checker       StatusChecker
	maxAttempts   int
	pollInterval  time.Duration
	retryInterval time.Duration
}

func NewMonitor(checker StatusChecker, maxAttempts int, pollInterval, retryInterval time.Duration) *Monitor {
	if maxAttempts <= 0 {
		maxAttempts = 30
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if retryInterval <= 0 {
		retryInterval = 3 * time.Second
	}
	return &Monitor{
		checker:       checker,
		maxAttempts:   maxAttempts,
		pollInterval:  pollInterval,
		retryInterval: retryInterval,
	}
}

// Wait blocks until the job is done. A job that reports DONE with errors
// fails immediately with the joined error messages and no further polls.
// logf receives progress lines for the owning job's log.
func (m *Monitor) Wait(ctx context.Context, projectID, jobID string, logf func(format string, args ...any)) error {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	attempts := 0
	transient := false
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		if transient {
			return m.retryInterval, false
		}
		return m.pollInterval, false
	})

	err := retry.Do(ctx, retry.WithMaxRetries(uint64(m.maxAttempts-1), backoff), func(ctx context.Context) error {
		attempts++
		state, err := m.checker.GetJobStatus(ctx, projectID, jobID)
		if err != nil {
			transient = true
			logf("Failed to check load job status (attempt %d): %v", attempts, err)
			return retry.RetryableError(err)
		}
		transient = false

		if state.Done() {
			if len(state.Errors) > 0 {
				return fmt.Errorf("load job failed: %s", state.ErrorText())
			}
			return nil
		}

		logf("Load job status: %s (attempt %d)", state.State, attempts)
		return retry.RetryableError(errStillRunning)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, errStillRunning) {
		return fmt.Errorf("%w after %d attempts", ErrMonitorTimeout, attempts)
	}
	return err
}
