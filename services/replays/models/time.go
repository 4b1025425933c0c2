package models

import (
	"fmt"
	"strings"
	"time"
)

// Time wraps time.Time with a tolerant JSON decoder. Index files written by
// the original Python indexer carry zone-less ISO 8601 timestamps
// ("2024-03-17T21:05:11.582931"), which encoding/json's RFC 3339 parser
// rejects. Marshalling always emits RFC 3339.
type Time struct {
	time.Time
}

// NewTime wraps a time.Time.
func NewTime(t time.Time) Time {
	return Time{Time: t}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// UnmarshalJSON accepts RFC 3339 as well as zone-less ISO forms. An empty or
// null value decodes to the zero time.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp %q", s)
}

// MarshalJSON emits RFC 3339.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + t.Format(time.RFC3339Nano) + `"`), nil
}
