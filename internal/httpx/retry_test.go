package httpx

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestHTTPErrorIsRetryable(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadGateway, true},
		{http.StatusInternalServerError, true},
		{http.StatusNotFound, false},
		{http.StatusBadRequest, false},
	}
	for _, c := range cases {
		e := &HTTPError{StatusCode: c.status}
		if got := e.IsRetryable(); got != c.want {
			t.Errorf("status %d: got %v, want %v", c.status, got, c.want)
		}
	}
}

func TestIsRetryableErrorTreatsTransportErrorsAsRetryable(t *testing.T) {
	if !IsRetryableError(errors.New("connection reset")) {
		t.Fatal("non-HTTPError should default to retryable")
	}
	if IsRetryableError(nil) {
		t.Fatal("nil error should not be retryable")
	}
}

func TestRetryWithBackoffStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := &HTTPError{StatusCode: http.StatusNotFound}
	err := RetryWithBackoff(context.Background(), 3, func() error {
		calls++
		return permanent
	})
	if err != permanent {
		t.Fatalf("expected the permanent error back, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent errors must not be retried, got %d calls", calls)
	}
}

func TestRetryWithBackoffEventuallySucceeds(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), 3, func() error {
		calls++
		if calls < 2 {
			return &HTTPError{StatusCode: http.StatusServiceUnavailable}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryWithBackoffRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryWithBackoff(ctx, 3, func() error {
		return &HTTPError{StatusCode: http.StatusServiceUnavailable}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBackoffScheduleGrowsAndCaps(t *testing.T) {
	first := BackoffSchedule(0)
	if first <= 0 || first > 2*time.Second {
		t.Fatalf("attempt 0 backoff out of expected range: %v", first)
	}
	capped := BackoffSchedule(20)
	if capped > 30*time.Second {
		t.Fatalf("backoff should cap at 30s, got %v", capped)
	}
}
