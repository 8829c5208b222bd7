package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNilLimiterNeverBlocks(t *testing.T) {
	var l *Limiter
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("wait err=%v", err)
	}
	if !l.Allow() {
		t.Fatalf("nil limiter should allow")
	}
}

func TestBurstThenWait(t *testing.T) {
	l := NewWithBurst(1, 2)
	if !l.Allow() || !l.Allow() {
		t.Fatalf("burst of 2 should be allowed")
	}
	if l.Allow() {
		t.Fatalf("third call should exceed burst")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatalf("wait should fail before a token refills")
	}
}

func TestZeroRateIsUnlimited(t *testing.T) {
	l := NewWithBurst(0, 1)
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatalf("call %d rejected", i)
		}
	}
}
