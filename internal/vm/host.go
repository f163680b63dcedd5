package vm

import (
	"fmt"
	"io"

	"golang.org/x/text/unicode/norm"
)

// HostFunc is a native function reachable through host_call. Arguments are
// borrowed for the duration of the call; the returned value is owned by the
// VM and pushed onto the operand stack. A HostFunc that wants to keep an
// argument must Retain it. A non-nil error aborts execution as a host panic.
type HostFunc func(hp *Heap, args []Value) (Value, error)

// Host registry indices of the default builtins.
const (
	HostPrint   = 0
	HostLen     = 1
	HostStrNorm = 2
)

// DefaultHosts returns the builtin host registry writing print output to w.
func DefaultHosts(w io.Writer) []HostFunc {
	return []HostFunc{
		HostPrint:   hostPrint(w),
		HostLen:     hostLen,
		HostStrNorm: hostStrNorm,
	}
}

func hostPrint(w io.Writer) HostFunc {
	return func(hp *Heap, args []Value) (Value, error) {
		for i, v := range args {
			if i > 0 {
				if _, err := io.WriteString(w, " "); err != nil {
					return Value{}, err
				}
			}
			if _, err := io.WriteString(w, hp.Format(v)); err != nil {
				return Value{}, err
			}
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return Value{}, err
		}
		return MakeUnit(), nil
	}
}

func hostLen(hp *Heap, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, fmt.Errorf("len expects 1 argument, got %d", len(args))
	}
	v := args[0]
	switch v.Kind {
	case VKString:
		return MakeInt(int64(len(hp.Get(v.H).Str))), nil
	case VKList:
		return MakeInt(int64(len(hp.Get(v.H).List))), nil
	case VKDict:
		return MakeInt(int64(len(hp.Get(v.H).Dict))), nil
	case VKSet:
		return MakeInt(int64(len(hp.Get(v.H).Set))), nil
	case VKTuple:
		return MakeInt(int64(len(hp.Get(v.H).Tuple))), nil
	default:
		return Value{}, fmt.Errorf("len of %s", v.Kind)
	}
}

// hostStrNorm returns the NFC normalization of its string argument.
func hostStrNorm(hp *Heap, args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != VKString {
		return Value{}, fmt.Errorf("str_norm expects a string argument")
	}
	return hp.AllocString(norm.NFC.Bytes(hp.Get(args[0].H).Str)), nil
}
