package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FullnamePrefix is the kind prefix of link (submission) fullnames
const FullnamePrefix = "t3_"

// Submission is one record from the bulk search API. Keys are whatever the
// API returned; only id and created_utc are required.
type Submission map[string]any

// ID returns the base-36 submission id
func (s Submission) ID() string {
	return stringValue(s["id"])
}

// Fullname returns the id with its t3_ kind prefix
func (s Submission) Fullname() string {
	return Fullname(s.ID())
}

// CreatedUTC returns the creation time in epoch seconds, rounding
// fractional timestamps
func (s Submission) CreatedUTC() (int64, error) {
	v, ok := s["created_utc"]
	if !ok || v == nil {
		return 0, fmt.Errorf("submission %q has no created_utc", s.ID())
	}

	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("submission %q: invalid created_utc %q: %w", s.ID(), n, err)
		}
		f = parsed
	case float64:
		f = n
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("submission %q: invalid created_utc %q: %w", s.ID(), n, err)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("submission %q: unsupported created_utc type %T", s.ID(), v)
	}
	return int64(math.Round(f)), nil
}

// Thing is a live object from the lookup API: the data of a listing child
type Thing map[string]any

// Name returns the fullname of the thing
func (t Thing) Name() string {
	if name := stringValue(t["name"]); name != "" {
		return name
	}
	if id := stringValue(t["id"]); id != "" {
		return Fullname(id)
	}
	return ""
}

// Attr reads an attribute by name
func (t Thing) Attr(name string) (any, bool) {
	v, ok := t[name]
	return v, ok
}

// Fullname adds the t3_ prefix to id unless it is already present
func Fullname(id string) string {
	if id == "" || strings.HasPrefix(id, FullnamePrefix) {
		return id
	}
	return FullnamePrefix + id
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
