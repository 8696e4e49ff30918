package globaltime

import (
	"testing"
	"time"
)

func TestSetMockTime(t *testing.T) {
	pinned := time.Date(2026, 3, 31, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	SetMockTime(pinned)
	t.Cleanup(ResetTime)

	if got := Now(); !got.Equal(pinned) {
		t.Fatalf("Now() = %v, want %v", got, pinned)
	}
	if got := UTC(); got.Location() != time.UTC || got.Hour() != 11 {
		t.Fatalf("UTC() = %v, want 11:00 UTC", got)
	}

	ResetTime()
	if got := Now(); got.Equal(pinned) {
		t.Fatal("ResetTime should restore the wall clock")
	}
}
