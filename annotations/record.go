// Package annotations wraps the external description/annotation source used to
// decide which segments carry visible annotations at a timeframe.
package annotations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/unkn0wn-root/voxcache/segkey"
)

// Target points a record at one segment.
type Target struct {
	SegmentationID string `json:"segmentation_id"`
	SegmentID      int    `json:"segment_id"`
}

// Timeframes is the "time" field of a record: absent, a single index, or a list.
// Empty means the record applies at every timeframe.
type Timeframes []int

func (t *Timeframes) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = nil
		return nil
	}
	if b[0] == '[' {
		var list []int
		if err := json.Unmarshal(b, &list); err != nil {
			return fmt.Errorf("annotations: time: %w", err)
		}
		*t = list
		return nil
	}
	var one int
	if err := json.Unmarshal(b, &one); err != nil {
		return fmt.Errorf("annotations: time: %w", err)
	}
	*t = Timeframes{one}
	return nil
}

func (t Timeframes) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]int(t))
}

func (t Timeframes) Includes(tf int) bool {
	return len(t) == 0 || slices.Contains(t, tf)
}

// Record is one description or annotation.
type Record struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	TargetKind string     `json:"target_kind"`
	TargetID   *Target    `json:"target_id,omitempty"`
	Time       Timeframes `json:"time,omitempty"`
	IsHidden   bool       `json:"is_hidden,omitempty"`
}

// AppliesAt reports whether the record is meant for timeframe tf.
func (r Record) AppliesAt(tf int) bool { return r.Time.Includes(tf) }

// Key is the segment the record targets. ok is false for untargeted records and
// unknown kinds.
func (r Record) Key() (segkey.Key, bool) {
	if r.TargetID == nil {
		return segkey.Key{}, false
	}
	kind, ok := segkey.ParseKind(r.TargetKind)
	if !ok {
		return segkey.Key{}, false
	}
	return segkey.New(kind, r.TargetID.SegmentationID, r.TargetID.SegmentID), true
}
