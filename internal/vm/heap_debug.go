package vm

import (
	"fmt"
	"sort"
	"strings"
)

// objectSummary is the one-line debug rendering used by leak reports and the
// heap dump: kind, handle and current refcount.
func objectSummary(h Handle, obj *Object) string {
	extra := ""
	switch obj.Kind {
	case OKString:
		s := obj.Str
		if len(s) > 16 {
			s = s[:16]
		}
		extra = fmt.Sprintf(" %q", s)
	case OKList:
		extra = fmt.Sprintf(" len=%d", len(obj.List))
	case OKDict:
		extra = fmt.Sprintf(" len=%d", len(obj.Dict))
	case OKSet:
		extra = fmt.Sprintf(" len=%d", len(obj.Set))
	case OKTuple:
		extra = fmt.Sprintf(" len=%d", len(obj.Tuple))
	case OKSignal:
		extra = fmt.Sprintf(" id=%s deps=%d", obj.Signal.ID, len(obj.Signal.Dependents))
	case OKComputed:
		extra = fmt.Sprintf(" id=%s deps=%d", obj.Computed.ID, len(obj.Computed.Dependencies))
	}
	return fmt.Sprintf("%s#%d rc=%d%s", obj.Kind, h, obj.RefCount, extra)
}

// DumpObjects renders every live object in allocation order, one per line.
// Debug helper for tests and the stats command.
func (hp *Heap) DumpObjects() string {
	type entry struct {
		h   Handle
		obj *Object
	}
	entries := make([]entry, 0, len(hp.objs))
	for h, obj := range hp.objs {
		entries = append(entries, entry{h, obj})
	}
	sort.Slice(entries, func(a, b int) bool {
		return entries[a].obj.AllocID < entries[b].obj.AllocID
	})
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(objectSummary(e.h, e.obj))
		sb.WriteByte('\n')
	}
	return sb.String()
}
