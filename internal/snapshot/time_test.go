package snapshot

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimeRoundTrip(t *testing.T) {
	t.Parallel()

	in := At(time.Date(2026, 3, 1, 8, 30, 15, 123456789, time.UTC))
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(raw) != `"2026-03-01T08:30:15.123456789Z"` {
		t.Fatalf("Marshal() = %s", raw)
	}
	var out Time
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !out.Equal(in.Time) {
		t.Fatalf("round trip = %v, want %v", out, in)
	}
}

func TestTimeAcceptsLegacyLayouts(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		`"2025-06-01T10:11:12.654321"`,
		`"2025-06-01T10:11:12"`,
		`"2025-06-01 10:11:12"`,
	} {
		var out Time
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", raw, err)
		}
		if out.Year() != 2025 || out.Month() != time.June || out.Second() != 12 {
			t.Fatalf("Unmarshal(%s) = %v", raw, out)
		}
	}
}

func TestTimeNullAndInvalid(t *testing.T) {
	t.Parallel()

	var out Time
	if err := json.Unmarshal([]byte(`null`), &out); err != nil || !out.IsZero() {
		t.Fatalf("Unmarshal(null) = (%v, %v)", out, err)
	}
	if raw, _ := json.Marshal(Time{}); string(raw) != "null" {
		t.Fatalf("Marshal(zero) = %s", raw)
	}
	if err := json.Unmarshal([]byte(`"yesterday"`), &out); err == nil {
		t.Fatalf("Unmarshal(yesterday) expected error")
	}
}
