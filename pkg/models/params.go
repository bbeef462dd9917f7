package models

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParamValue is either a Literal or a Reference to an earlier task's result.
// The set of implementations is closed.
type ParamValue interface {
	isParamValue()
}

// Literal is a parameter value passed to the service unchanged.
type Literal struct {
	Value any
}

// Reference points at the result of another task in the same chain,
// optionally narrowed to a nested field or list index.
type Reference struct {
	TaskID string
	Path   []string
}

func (Literal) isParamValue()   {}
func (Reference) isParamValue() {}

// String renders the reference in its wire form: taskId.result[.path].
func (r Reference) String() string {
	if len(r.Path) == 0 {
		return r.TaskID + ".result"
	}
	return r.TaskID + ".result." + strings.Join(r.Path, ".")
}

var referencePattern = regexp.MustCompile(`^([A-Za-z0-9_\-]+)\.result(?:\.([^\s]+))?$`)

// ParseReference parses a string of the form taskId.result or
// taskId.result.field[.field|.index]*.
func ParseReference(s string) (Reference, bool) {
	m := referencePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Reference{}, false
	}
	ref := Reference{TaskID: m[1]}
	if m[2] != "" {
		for _, seg := range strings.Split(m[2], ".") {
			if seg == "" {
				return Reference{}, false
			}
			ref.Path = append(ref.Path, seg)
		}
	}
	return ref, true
}

// ParseParam classifies a raw decoded JSON value. Strings that match the
// reference grammar become References; everything else is a Literal.
func ParseParam(raw any) ParamValue {
	if s, ok := raw.(string); ok {
		if ref, ok := ParseReference(s); ok {
			return ref
		}
	}
	return Literal{Value: raw}
}

// Params maps parameter names to their values.
type Params map[string]ParamValue

// References returns every Reference in the map.
func (p Params) References() []Reference {
	var refs []Reference
	for _, v := range p {
		if r, ok := v.(Reference); ok {
			refs = append(refs, r)
		}
	}
	return refs
}

// MarshalJSON writes references in their string form.
func (p Params) MarshalJSON() ([]byte, error) {
	raw := make(map[string]any, len(p))
	for k, v := range p {
		switch pv := v.(type) {
		case Reference:
			raw[k] = pv.String()
		case Literal:
			raw[k] = pv.Value
		}
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes a JSON object, classifying each value.
func (p *Params) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Params, len(raw))
	for k, v := range raw {
		out[k] = ParseParam(v)
	}
	*p = out
	return nil
}
