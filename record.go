package backoffice

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Record is one JSON object stored in a collection. Beyond the reserved
// fields below the store imposes no schema; field shape and cross-collection
// references are enforced by callers.
type Record map[string]any

// Reserved record fields managed by the store.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// ID returns the record's id field, or the empty string when absent.
func (r Record) ID() string {
	return r.GetString(FieldID)
}

// GetString returns the named field as a string, or "" when the field is
// absent or not a string.
func (r Record) GetString(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// GetFloat returns the named field as a float64. JSON numbers decode as
// float64, but records built in code may carry ints or numeric strings, so
// those are converted too. Absent or non-numeric fields yield def.
func (r Record) GetFloat(key string, def float64) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if v == "" {
			return def
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		return def
	default:
		return def
	}
}

// GetInt returns the named field as an int, applying the same conversions
// as GetFloat.
func (r Record) GetInt(key string, def int) int {
	f := r.GetFloat(key, float64(def))
	return int(f)
}

// GetBool returns the named field as a bool; absent or non-bool fields
// yield def.
func (r Record) GetBool(key string, def bool) bool {
	if v, ok := r[key].(bool); ok {
		return v
	}
	return def
}

// Clone returns a shallow copy of the record. Nested values are shared.
func (r Record) Clone() Record {
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// TimestampNow returns the current local time formatted as an ISO-8601
// timestamp, the representation used for created_at/updated_at.
func TimestampNow() string {
	return time.Now().Format(time.RFC3339Nano)
}

// NewRecordID returns a new 8-character record ID, the first segment of a
// random UUID. Uniqueness within a collection is checked by the store at
// create time, which regenerates on the (unlikely) collision.
func NewRecordID() string {
	return uuid.NewString()[:8]
}
