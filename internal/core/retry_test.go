package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(n int) RetryPolicy {
	return RetryPolicy{MaxRetries: n, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetryTransient(t *testing.T) {
	transient := &PersistError{Transient: true, Err: errors.New("connection reset")}
	permanent := &PersistError{Err: errors.New("syntax error")}

	tests := []struct {
		name      string
		policy    RetryPolicy
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{"success first try", fastRetry(3), nil, 1, nil},
		{"recovers after transient", fastRetry(3), []error{transient, transient}, 3, nil},
		{"permanent stops immediately", fastRetry(3), []error{permanent}, 1, permanent},
		{"retries exhausted", fastRetry(1), []error{transient, transient, transient}, 2, transient},
		{"zero retries", fastRetry(0), []error{transient}, 1, transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retryTransient(context.Background(), tt.policy, quietLogger(), func() error {
				calls++
				if calls <= len(tt.errs) {
					return tt.errs[calls-1]
				}
				return nil
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryTransient_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	transient := &PersistError{Transient: true, Err: errors.New("connection refused")}

	calls := 0
	err := retryTransient(ctx, RetryPolicy{MaxRetries: 10, InitialInterval: time.Hour, MaxInterval: time.Hour}, quietLogger(), func() error {
		calls++
		cancel()
		return transient
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, transient) {
		t.Errorf("err = %v, want the store error rather than the context error", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("x"), false},
		{"non-transient persist", &PersistError{Err: errors.New("x")}, false},
		{"transient persist", &PersistError{Transient: true, Err: errors.New("x")}, true},
		{"wrapped transient", errors.Join(errors.New("ctx"), &PersistError{Transient: true, Err: errors.New("x")}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}
