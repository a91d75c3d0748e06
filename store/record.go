package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// timeLayout formats last_activity at a fixed millisecond precision,
// per spec: neither RFC3339's second-only truncation nor RFC3339Nano's
// variable-width fractional seconds (which drops trailing zeros) is
// enough on its own.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is the unit of storage: a path prefix mapped to an upstream
// target plus activity tracking and arbitrary caller metadata. Fields
// other than Target and LastActivity (e.g. "user", "server_name") are
// carried in Data and round-tripped verbatim at the top level of the
// JSON representation, per spec.
type Record struct {
	// Target is the upstream origin URL, scheme http or ws,
	// without a trailing slash.
	Target string

	// LastActivity is the last time a request was successfully
	// dispatched to this route, or the creation time if none yet.
	// It is monotonically non-decreasing.
	LastActivity time.Time

	// Data is arbitrary caller-supplied metadata, round-tripped
	// verbatim. It never contains the "target" or "last_activity"
	// keys; those are always promoted to the Target/LastActivity
	// fields above.
	Data map[string]any
}

// Clone returns a deep-enough copy of r for safe handoff across
// goroutines: Data is copied one level deep.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	data := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	return &Record{Target: r.Target, LastActivity: r.LastActivity, Data: data}
}

// MergeData merges src into r.Data, overwriting existing keys.
func (r *Record) MergeData(src map[string]any) {
	if r.Data == nil {
		r.Data = make(map[string]any, len(src))
	}
	for k, v := range src {
		r.Data[k] = v
	}
}

// MarshalJSON spreads Data at the top level alongside target and
// last_activity, e.g. {"target": "...", "last_activity": "...",
// "user": "jdoe"}.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Data)+2)
	for k, v := range r.Data {
		out[k] = v
	}
	out["target"] = r.Target
	if !r.LastActivity.IsZero() {
		out["last_activity"] = r.LastActivity.UTC().Format(timeLayout)
	}
	return json.Marshal(out)
}

// UnmarshalJSON requires a string "target" field; everything else
// becomes Data, with "last_activity" (if present and parseable as
// RFC3339) promoted to LastActivity instead.
func (r *Record) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	target, ok := raw["target"].(string)
	if !ok {
		return fmt.Errorf("store: must specify 'target' as string")
	}
	delete(raw, "target")

	var lastActivity time.Time
	if v, ok := raw["last_activity"]; ok {
		if s, ok := v.(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				lastActivity = t
			}
		}
		delete(raw, "last_activity")
	}

	r.Target = target
	r.LastActivity = lastActivity
	r.Data = raw
	return nil
}
