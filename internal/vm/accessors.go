package vm

import (
	"fmt"
	"sort"
	"strings"
)

// Read-only accessor surface for embedders inspecting a Value they own. All
// returned values and slices are borrowed: they stay valid while the caller
// still holds its reference on the enclosing value.

func AsInt(v Value) (int64, bool) {
	if v.Kind != VKInt {
		return 0, false
	}
	return v.Int, true
}

func AsFloat(v Value) (float64, bool) {
	if v.Kind != VKFloat {
		return 0, false
	}
	return v.Float, true
}

func AsBool(v Value) (bool, bool) {
	if v.Kind != VKBool {
		return false, false
	}
	return v.Bool, true
}

func IsUnit(v Value) bool { return v.Kind == VKUnit }

// StringBytes returns the byte content of a string value.
func (hp *Heap) StringBytes(v Value) ([]byte, bool) {
	if v.Kind != VKString {
		return nil, false
	}
	return hp.Get(v.H).Str, true
}

func (hp *Heap) ListLen(v Value) (int, bool) {
	if v.Kind != VKList {
		return 0, false
	}
	return len(hp.Get(v.H).List), true
}

func (hp *Heap) ListGet(v Value, i int) (Value, bool) {
	if v.Kind != VKList {
		return Value{}, false
	}
	elems := hp.Get(v.H).List
	if i < 0 || i >= len(elems) {
		return Value{}, false
	}
	return elems[i], true
}

func (hp *Heap) TupleLen(v Value) (int, bool) {
	if v.Kind != VKTuple {
		return 0, false
	}
	return len(hp.Get(v.H).Tuple), true
}

func (hp *Heap) TupleGet(v Value, i int) (Value, bool) {
	if v.Kind != VKTuple {
		return Value{}, false
	}
	elems := hp.Get(v.H).Tuple
	if i < 0 || i >= len(elems) {
		return Value{}, false
	}
	return elems[i], true
}

func (hp *Heap) DictLen(v Value) (int, bool) {
	if v.Kind != VKDict {
		return 0, false
	}
	return len(hp.Get(v.H).Dict), true
}

func (hp *Heap) DictGet(v Value, key string) (Value, bool) {
	if v.Kind != VKDict {
		return Value{}, false
	}
	val, ok := hp.Get(v.H).Dict[key]
	return val, ok
}

func (hp *Heap) SetLen(v Value) (int, bool) {
	if v.Kind != VKSet {
		return 0, false
	}
	return len(hp.Get(v.H).Set), true
}

// SetContains tests membership using set-key semantics. A NaN probe never
// matches, same as NaN equality.
func (hp *Heap) SetContains(v, elem Value) bool {
	if v.Kind != VKSet {
		return false
	}
	if elem.Kind == VKFloat && elem.Float != elem.Float {
		return false
	}
	_, ok := hp.Get(v.H).Set[makeSetKey(elem)]
	return ok
}

// Format renders v deeply for diagnostics and print. Dict keys sort for
// stable output; nesting is followed through handles without cycle
// protection beyond a depth cap.
func (hp *Heap) Format(v Value) string {
	return hp.format(v, 0)
}

const formatDepthCap = 8

func (hp *Heap) format(v Value, depth int) string {
	if depth > formatDepthCap {
		return "..."
	}
	switch v.Kind {
	case VKString:
		return string(hp.Get(v.H).Str)
	case VKList:
		return hp.formatSeq("[", "]", hp.Get(v.H).List, depth)
	case VKTuple:
		return hp.formatSeq("(", ")", hp.Get(v.H).Tuple, depth)
	case VKDict:
		obj := hp.Get(v.H)
		keys := make([]string, 0, len(obj.Dict))
		for k := range obj.Dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%q: %s", k, hp.format(obj.Dict[k], depth+1))
		}
		sb.WriteByte('}')
		return sb.String()
	case VKSet:
		obj := hp.Get(v.H)
		parts := make([]string, 0, len(obj.Set))
		for _, el := range obj.Set {
			parts = append(parts, hp.format(el, depth+1))
		}
		sort.Strings(parts)
		return "{" + strings.Join(parts, ", ") + "}"
	case VKSignal:
		s := hp.Get(v.H).Signal
		return fmt.Sprintf("signal(%s: %s)", s.ID, hp.format(s.Value, depth+1))
	case VKComputed:
		c := hp.Get(v.H).Computed
		if !c.HasCached {
			return fmt.Sprintf("computed(%s: <stale>)", c.ID)
		}
		return fmt.Sprintf("computed(%s: %s)", c.ID, hp.format(c.Cached, depth+1))
	default:
		return v.String()
	}
}

func (hp *Heap) formatSeq(open, close string, elems []Value, depth int) string {
	var sb strings.Builder
	sb.WriteString(open)
	for i, el := range elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(hp.format(el, depth+1))
	}
	sb.WriteString(close)
	return sb.String()
}
