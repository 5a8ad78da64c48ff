package presence_test

import (
	"testing"
	"time"

	"presencelog/internal/presence"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]presence.Status{
		"Available":       presence.StatusAvailable,
		"AvailableIdle":   presence.StatusAvailable,
		"Busy":            presence.StatusBusy,
		"BusyIdle":        presence.StatusBusy,
		"Away":            presence.StatusAway,
		"BeRightBack":     presence.StatusBeRightBack,
		"DoNotDisturb":    presence.StatusDoNotDisturb,
		"Offline":         presence.StatusOffline,
		"PresenceUnknown": presence.StatusUnknown,
	}

	for in, want := range cases {
		if got := presence.ParseStatus(in); got != want {
			t.Errorf("ParseStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseStatusUnrecognized(t *testing.T) {
	// Upstream vocabulary changes must not fail the pipeline.
	for _, in := range []string{"", "InACall", "available", "Presenting"} {
		if got := presence.ParseStatus(in); got != presence.StatusUnknown {
			t.Errorf("ParseStatus(%q) = %q, want Unknown", in, got)
		}
	}
}

func TestNormalize(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 30, 45, 123, time.UTC)

	rec := presence.Normalize("user-1", presence.RawPresence{
		Availability: "Busy",
		Activity:     "InAMeeting",
	}, now)

	if rec.UserID != "user-1" {
		t.Errorf("UserID = %q", rec.UserID)
	}
	if rec.Status != presence.StatusBusy {
		t.Errorf("Status = %q, want Busy", rec.Status)
	}
	if rec.Activity != "InAMeeting" {
		t.Errorf("Activity = %q", rec.Activity)
	}

	// CapturedAt is the cycle reference time at minute precision.
	want := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	if !rec.CapturedAt.Equal(want) {
		t.Errorf("CapturedAt = %v, want %v", rec.CapturedAt, want)
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	now := time.Now()
	raw := presence.RawPresence{Availability: "Away", Activity: "Away"}

	a := presence.Normalize("u", raw, now)
	b := presence.Normalize("u", raw, now)
	if a != b {
		t.Errorf("Normalize not deterministic: %+v != %+v", a, b)
	}
}
