package api

import (
	"encoding/json"
	"time"
)

// timestampLayouts are tried in order. Flask's jsonify emits RFC 1123 with a
// GMT zone; MySQL DATETIME columns passed through as strings use the last.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Timestamp is a creation time as sent by the backend. The raw text is kept
// so values in an unknown layout still round-trip and display.
type Timestamp struct {
	Time time.Time
	Raw  string
}

// ParseTimestamp parses s with the known backend layouts.
func ParseTimestamp(s string) Timestamp {
	ts := Timestamp{Raw: s}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t
			break
		}
	}
	return ts
}

// IsZero reports whether no timestamp was sent.
func (t Timestamp) IsZero() bool {
	return t.Raw == "" && t.Time.IsZero()
}

// Format renders the time in layout, or the raw text if it could not be parsed.
func (t Timestamp) Format(layout string) string {
	if t.Time.IsZero() {
		return t.Raw
	}
	return t.Time.Local().Format(layout)
}

func (t Timestamp) String() string {
	return t.Format("Jan 2, 2006 15:04")
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = ParseTimestamp(s)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.text())
}

func (t Timestamp) MarshalYAML() (interface{}, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.text(), nil
}

func (t Timestamp) text() string {
	if t.Raw != "" {
		return t.Raw
	}
	return t.Time.Format(time.RFC3339)
}
