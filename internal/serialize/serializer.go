// Package serialize normalizes opaque conversion results into JSON-compatible data.
package serialize

import (
	"fmt"
)

// DictExporter is implemented by results that can export themselves as a map.
type DictExporter interface {
	ToDict() map[string]any
}

// ModelDumper is implemented by results that wrap a decoded model payload.
type ModelDumper interface {
	ModelDump() (map[string]any, error)
}

// Strategy tries to turn a result into JSON-compatible data. ok is false when
// the strategy does not apply.
type Strategy func(result any) (out any, ok bool)

// DefaultStrategies is the extraction order used by Serialize.
var DefaultStrategies = []Strategy{
	FromDict,
	FromModelDump,
	FromText,
}

// Serialize runs the default strategies in order.
func Serialize(result any) any {
	return SerializeWith(result, DefaultStrategies...)
}

// SerializeWith runs strategies in order and returns the first result that
// applies. When none apply it falls back to the textual representation.
func SerializeWith(result any, strategies ...Strategy) any {
	for _, s := range strategies {
		if out, ok := s(result); ok {
			return out
		}
	}
	out, _ := FromText(result)
	return out
}

// FromDict uses DictExporter.
func FromDict(result any) (any, bool) {
	d, ok := result.(DictExporter)
	if !ok {
		return nil, false
	}
	return d.ToDict(), true
}

// FromModelDump uses ModelDumper; a dump error falls through.
func FromModelDump(result any) (any, bool) {
	m, ok := result.(ModelDumper)
	if !ok {
		return nil, false
	}
	out, err := m.ModelDump()
	if err != nil {
		return nil, false
	}
	return out, true
}

// FromText always applies.
func FromText(result any) (any, bool) {
	if s, ok := result.(fmt.Stringer); ok {
		return s.String(), true
	}
	return fmt.Sprint(result), true
}
