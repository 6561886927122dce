package model

import "time"

// Document is a flat record mirrored from the backing store: the document
// identifier plus its decoded field map.
type Document struct {
	ID     string
	Fields map[string]any
}

// Snapshot is the full current set of documents in a collection, delivered
// on every remote change. Snapshots replace prior state wholesale; they are
// never applied incrementally.
type Snapshot []Document

// StringField reads a string-valued field, returning "" when absent or
// mistyped. Mirrored documents are server-owned, so decoding is lenient.
func (d Document) StringField(key string) string {
	if v, ok := d.Fields[key].(string); ok {
		return v
	}
	return ""
}

// FloatField reads a numeric field, accepting the numeric types produced by
// the JSON decoders of the store backends.
func (d Document) FloatField(key string) float64 {
	switch v := d.Fields[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// TimeField reads a timestamp field. Backends deliver timestamps either as
// time.Time (memory store) or RFC 3339 strings (JSON round-trips through
// redis and postgres).
func (d Document) TimeField(key string) time.Time {
	switch v := d.Fields[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	case float64:
		return time.Unix(int64(v), 0).UTC()
	}
	return time.Time{}
}
