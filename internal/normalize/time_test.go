package normalize

import (
	"testing"
	"time"
)

func TestAppleTimestampToLocalNanoseconds(t *testing.T) {
	var seconds int64 = 500_000_000
	raw := seconds * 1_000_000_000

	got := AppleTimestampToLocal(&raw)
	want := appleEpoch.Add(time.Duration(seconds) * time.Second)
	if !got.UTC().Equal(want) {
		t.Fatalf("AppleTimestampToLocal(%d ns) = %v, want %v", raw, got.UTC(), want)
	}
}

func TestAppleTimestampToLocalMicroseconds(t *testing.T) {
	var seconds int64 = 500_000_001
	raw := seconds * 1_000_000

	got := AppleTimestampToLocal(&raw)
	want := appleEpoch.Add(time.Duration(seconds) * time.Second)
	if !got.UTC().Equal(want) {
		t.Fatalf("AppleTimestampToLocal(%d us) = %v, want %v", raw, got.UTC(), want)
	}
}

func TestAppleTimestampToLocalSeconds(t *testing.T) {
	var raw int64 = 500_000_003

	got := AppleTimestampToLocal(&raw)
	want := appleEpoch.Add(time.Duration(raw) * time.Second)
	if !got.UTC().Equal(want) {
		t.Fatalf("AppleTimestampToLocal(%d s) = %v, want %v", raw, got.UTC(), want)
	}
}

func TestAppleTimestampToLocalNilIsEpoch(t *testing.T) {
	got := AppleTimestampToLocal(nil)
	if !got.UTC().Equal(appleEpoch) {
		t.Fatalf("AppleTimestampToLocal(nil) = %v, want %v", got.UTC(), appleEpoch)
	}
}

func TestLocalToAppleTimestampSecondsRoundTrips(t *testing.T) {
	var raw int64 = 500_000_003
	local := AppleTimestampToLocal(&raw)
	if got := LocalToAppleTimestampSeconds(local); got != raw {
		t.Fatalf("LocalToAppleTimestampSeconds round trip = %d, want %d", got, raw)
	}
}
