// Package record provides the dynamic record type flowing through operations.
//
// Records are schema-free field maps: values are whatever JSON decoding
// produces (string, float64, bool, nil, []any, map[string]any). Operations
// that declare an output schema only constrain the declared fields; anything
// else is carried through untouched.
package record

import (
	"fmt"
	"maps"
)

// Record is an ordered-enough mapping from field name to a dynamically-typed
// value. Map iteration order is not relied upon anywhere; ordering guarantees
// live at the record-sequence level.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}

	out := make(Record, len(r))
	maps.Copy(out, r)

	return out
}

// Project returns a copy of the record restricted to the given field set.
// Fields absent from the record are silently dropped.
func (r Record) Project(fields map[string]string) Record {
	out := make(Record, len(fields))

	for name := range fields {
		if v, ok := r[name]; ok {
			out[name] = v
		}
	}

	return out
}

// Key returns the value of the named field and whether it is present.
func (r Record) Key(field string) (any, bool) {
	v, ok := r[field]

	return v, ok
}

// CompareValues imposes a total order on key values so records can be sorted
// and run-length grouped. Numbers sort before strings, strings before
// booleans; nil sorts first. Values of unsupported types fall back to their
// string rendering, which is stable within one execution.
func CompareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}

	switch va := a.(type) {
	case nil:
		return 0
	case string:
		vb := b.(string)

		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		default:
			return 0
		}
	case bool:
		vb := b.(bool)

		switch {
		case va == vb:
			return 0
		case !va:
			return -1
		default:
			return 1
		}
	default:
		fa, aok := toFloat(a)
		fb, bok := toFloat(b)

		if aok && bok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}

		sa, sb := fmt.Sprint(a), fmt.Sprint(b)

		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		default:
			return 0
		}
	}
}

// KeysEqual reports whether two key values group together.
func KeysEqual(a, b any) bool {
	return CompareValues(a, b) == 0
}

const (
	rankNil = iota
	rankNumber
	rankString
	rankBool
	rankOther
)

func rank(v any) int {
	switch v.(type) {
	case nil:
		return rankNil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return rankNumber
	case string:
		return rankString
	case bool:
		return rankBool
	default:
		return rankOther
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
