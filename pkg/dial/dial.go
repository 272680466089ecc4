// Package dial resolves scenario dials: tunable coefficients that are either a
// scalar, a per-key mapping with a default, or a two-level per-pair mapping
// with defaults at each level.
package dial

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultKey is the mapping key holding the fallback value at each level.
// DefaultAlias is accepted in its place; DefaultKey wins when both are set.
const (
	DefaultKey   = "default"
	DefaultAlias = "__default__"
)

var (
	// ErrUnresolved is returned when a key resolves to neither an explicit value nor a default.
	ErrUnresolved = errors.New("dial value unresolved")
	// ErrInvalid is returned when a dial document has an unsupported shape.
	ErrInvalid = errors.New("invalid dial")
)

// Kind tags the shape of a Spec.
type Kind int

const (
	Scalar Kind = iota
	PerKey
	PerPair
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case PerKey:
		return "per-key"
	case PerPair:
		return "per-pair"
	default:
		return "unknown"
	}
}

// Spec is a parsed dial.
type Spec struct {
	Kind Kind
	// Value holds a Scalar dial.
	Value float64
	// Values holds per-key scalar entries. For a PerPair dial these are
	// first-level keys whose value applies to every second-level key.
	Values map[string]float64
	// Nested holds the second level of a PerPair dial, defaults included.
	Nested map[string]map[string]float64
	// Default is the top-level fallback, if declared.
	Default *float64
}

// NewScalar returns a Scalar dial.
func NewScalar(v float64) Spec {
	return Spec{Kind: Scalar, Value: v}
}

// NewPerKey returns a PerKey dial. A "default" entry becomes the fallback.
func NewPerKey(values map[string]float64) Spec {
	s := Spec{Kind: PerKey, Values: make(map[string]float64, len(values))}
	for k, v := range values {
		if k == DefaultKey {
			d := v
			s.Default = &d
			continue
		}
		s.Values[k] = v
	}
	return s
}

// Parse builds a Spec from a decoded YAML/JSON value: a number, or a mapping
// whose values are numbers or (one level deep) mappings of numbers.
func Parse(raw any) (Spec, error) {
	if v, ok := toFloat(raw); ok {
		if err := checkFinite(v, ""); err != nil {
			return Spec{}, err
		}
		return NewScalar(v), nil
	}
	m, ok := toMap(raw)
	if !ok {
		return Spec{}, fmt.Errorf("%w: expected a number or a mapping, got %T", ErrInvalid, raw)
	}

	s := Spec{Kind: PerKey, Values: map[string]float64{}}
	for _, k := range sortedKeys(m) {
		val := m[k]
		if _, both := m[DefaultKey]; both && k == DefaultAlias {
			continue
		}
		if k == DefaultKey || k == DefaultAlias {
			v, ok := toFloat(val)
			if !ok {
				return Spec{}, fmt.Errorf("%w: %q must be a number, got %T", ErrInvalid, DefaultKey, val)
			}
			if err := checkFinite(v, k); err != nil {
				return Spec{}, err
			}
			s.Default = &v
			continue
		}
		if v, ok := toFloat(val); ok {
			if err := checkFinite(v, k); err != nil {
				return Spec{}, err
			}
			s.Values[k] = v
			continue
		}
		inner, ok := toMap(val)
		if !ok {
			return Spec{}, fmt.Errorf("%w: entry %q must be a number or a mapping, got %T", ErrInvalid, k, val)
		}
		row := make(map[string]float64, len(inner))
		for k2, v2 := range inner {
			if k2 == DefaultAlias {
				if _, ok := inner[DefaultKey]; ok {
					continue
				}
				k2 = DefaultKey
			}
			v, ok := toFloat(v2)
			if !ok {
				return Spec{}, fmt.Errorf("%w: entry %q.%q must be a number, got %T", ErrInvalid, k, k2, v2)
			}
			if err := checkFinite(v, k+"."+k2); err != nil {
				return Spec{}, err
			}
			row[k2] = v
		}
		if s.Nested == nil {
			s.Nested = map[string]map[string]float64{}
		}
		s.Nested[k] = row
	}
	if s.Nested != nil {
		s.Kind = PerPair
	}
	return s, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := Parse(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = parsed
	return nil
}

// MarshalJSON renders the dial in its document form.
func (s Spec) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Raw())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Raw renders the dial back into its document form.
func (s Spec) Raw() any {
	if s.Kind == Scalar {
		return s.Value
	}
	out := make(map[string]any, len(s.Values)+len(s.Nested)+1)
	for k, v := range s.Values {
		out[k] = v
	}
	for k, row := range s.Nested {
		inner := make(map[string]any, len(row))
		for k2, v := range row {
			inner[k2] = v
		}
		out[k] = inner
	}
	if s.Default != nil {
		out[DefaultKey] = *s.Default
	}
	return out
}

// Resolve returns the dial value for key: the scalar, the keyed entry, or the
// declared default, in that order.
func Resolve(s Spec, key string) (float64, error) {
	switch s.Kind {
	case Scalar:
		return s.Value, nil
	case PerKey:
		if v, ok := s.Values[key]; ok {
			return v, nil
		}
	case PerPair:
		if v, ok := s.Values[key]; ok {
			return v, nil
		}
		if v, ok := s.Nested[key][DefaultKey]; ok {
			return v, nil
		}
	default:
		return 0, fmt.Errorf("%w: unknown dial kind %d", ErrInvalid, s.Kind)
	}
	if s.Default != nil {
		return *s.Default, nil
	}
	return 0, fmt.Errorf("%w: no value or default for key %q", ErrUnresolved, key)
}

// Resolve2 returns the dial value for (key1, key2). A PerPair dial falls back
// from dial[key1][key2] to dial[key1]["default"] to dial["default"]. Other
// kinds resolve by key1.
func Resolve2(s Spec, key1, key2 string) (float64, error) {
	if s.Kind != PerPair {
		return Resolve(s, key1)
	}
	if row, ok := s.Nested[key1]; ok {
		if v, ok := row[key2]; ok {
			return v, nil
		}
		if v, ok := row[DefaultKey]; ok {
			return v, nil
		}
	}
	if v, ok := s.Values[key1]; ok {
		return v, nil
	}
	if s.Default != nil {
		return *s.Default, nil
	}
	return 0, fmt.Errorf("%w: no value or default for key (%q, %q)", ErrUnresolved, key1, key2)
}

func checkFinite(v float64, path string) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		if path == "" {
			return fmt.Errorf("%w: value must be finite, got %v", ErrInvalid, v)
		}
		return fmt.Errorf("%w: entry %q must be finite, got %v", ErrInvalid, path, v)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toMap(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case map[string]float64:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = val
		}
		return out, true
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
