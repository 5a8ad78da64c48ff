// Package presence defines the canonical availability model and the
// normalization boundary between raw Graph payloads and stored records.
// Raw provider shapes must not propagate past Normalize.
package presence

import "time"

// Status is the closed set of availability states.
type Status string

const (
	StatusAvailable    Status = "Available"
	StatusBusy         Status = "Busy"
	StatusAway         Status = "Away"
	StatusBeRightBack  Status = "BeRightBack"
	StatusDoNotDisturb Status = "DoNotDisturb"
	StatusOffline      Status = "Offline"
	StatusUnknown      Status = "Unknown"
)

// Member is a directory user resolved from the tenant.
// The ID is Graph's user GUID, stable across polls.
type Member struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// RawPresence is the provider payload for one member, as fetched.
// Availability and Activity are provider vocabulary, not validated.
type RawPresence struct {
	Availability string `json:"availability"`
	Activity     string `json:"activity"`
}

// Record is one normalized point in a member's availability history.
type Record struct {
	UserID     string    `json:"user_id"`
	Status     Status    `json:"status"`
	Activity   string    `json:"activity,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// availabilityMap folds the Graph availability vocabulary onto the
// canonical set. Idle variants collapse into their base state.
var availabilityMap = map[string]Status{
	"Available":       StatusAvailable,
	"AvailableIdle":   StatusAvailable,
	"Busy":            StatusBusy,
	"BusyIdle":        StatusBusy,
	"Away":            StatusAway,
	"BeRightBack":     StatusBeRightBack,
	"DoNotDisturb":    StatusDoNotDisturb,
	"Offline":         StatusOffline,
	"PresenceUnknown": StatusUnknown,
}

// ParseStatus maps a provider availability string to a Status.
// Unrecognized strings map to StatusUnknown so upstream vocabulary
// changes degrade gracefully instead of failing the pipeline.
func ParseStatus(availability string) Status {
	if s, ok := availabilityMap[availability]; ok {
		return s
	}
	return StatusUnknown
}

// Normalize converts a raw payload into a Record. Pure and deterministic.
// CapturedAt is the poll cycle's reference time truncated to the minute,
// never a provider-supplied timestamp, so every record written in one
// cycle shares the same time basis.
func Normalize(memberID string, raw RawPresence, now time.Time) Record {
	return Record{
		UserID:     memberID,
		Status:     ParseStatus(raw.Availability),
		Activity:   raw.Activity,
		CapturedAt: now.UTC().Truncate(time.Minute),
	}
}
