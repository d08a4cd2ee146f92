package store

import (
	"testing"
	"time"
)

func TestRetryDelay(t *testing.T) {
	cases := map[int]time.Duration{
		-1: 2 * time.Second,
		0:  2 * time.Second,
		1:  4 * time.Second,
		4:  32 * time.Second,
		7:  256 * time.Second,
		8:  300 * time.Second,
		50: 300 * time.Second,
	}
	for in, want := range cases {
		if got := RetryDelay(in); got != want {
			t.Errorf("RetryDelay(%d) = %v, want %v", in, got, want)
		}
	}
}
