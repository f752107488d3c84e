package types

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"time"
)

// Attribute data types determine what payloads a value accepts.
const (
	DataTypeText      = "text"
	DataTypeInteger   = "integer"
	DataTypeFloat     = "float"
	DataTypeBoolean   = "boolean"
	DataTypeTimestamp = "timestamp"
	DataTypeJSON      = "json"
)

// validDataTypes is the set of recognized attribute data types.
var validDataTypes = map[string]bool{
	DataTypeText:      true,
	DataTypeInteger:   true,
	DataTypeFloat:     true,
	DataTypeBoolean:   true,
	DataTypeTimestamp: true,
	DataTypeJSON:      true,
}

// IsValidDataType reports whether the given string is a recognized data type.
func IsValidDataType(dt string) bool {
	return validDataTypes[dt]
}

// RuleSet holds the validation rules of an attribute. Numeric bounds apply
// to integer and float attributes; length, pattern, and enum rules apply to
// text attributes. A zero RuleSet accepts any payload of the declared type.
type RuleSet struct {
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Enum      []string `json:"enum,omitempty"`
}

// Empty reports whether no rules are set.
func (r RuleSet) Empty() bool {
	return r.Min == nil && r.Max == nil && r.MinLength == nil &&
		r.MaxLength == nil && r.Pattern == "" && len(r.Enum) == 0
}

// Validate checks that the rule set is internally consistent and applicable
// to the given data type. Returns a Violation unwrapping to ErrValidation.
func (r RuleSet) Validate(dataType string) error {
	numeric := dataType == DataTypeInteger || dataType == DataTypeFloat
	textual := dataType == DataTypeText

	if (r.Min != nil || r.Max != nil) && !numeric {
		return NewViolation(ErrValidation, "rule-applicability", "", "",
			fmt.Sprintf("min/max rules require a numeric data type, got %q", dataType))
	}
	if (r.MinLength != nil || r.MaxLength != nil || r.Pattern != "" || len(r.Enum) > 0) && !textual {
		return NewViolation(ErrValidation, "rule-applicability", "", "",
			fmt.Sprintf("length/pattern/enum rules require data type %q, got %q", DataTypeText, dataType))
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return NewViolation(ErrValidation, "rule-consistency", "", "",
			fmt.Sprintf("min %v exceeds max %v", *r.Min, *r.Max))
	}
	if r.MinLength != nil && *r.MinLength < 0 {
		return NewViolation(ErrValidation, "rule-consistency", "", "", "min_length must not be negative")
	}
	if r.MinLength != nil && r.MaxLength != nil && *r.MinLength > *r.MaxLength {
		return NewViolation(ErrValidation, "rule-consistency", "", "",
			fmt.Sprintf("min_length %d exceeds max_length %d", *r.MinLength, *r.MaxLength))
	}
	if r.Pattern != "" {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return NewViolation(ErrValidation, "rule-consistency", "", "",
				fmt.Sprintf("pattern does not compile: %v", err))
		}
	}
	return nil
}

// Attribute is a reusable property definition, independent of the classes it
// is assigned to.
type Attribute struct {
	AttributeID string     // UUID v7, generated on creation.
	Tenant      Scope      // Owning tenant.
	Name        string     // Unique per tenant among live attributes.
	DataType    string     // One of the DataType constants.
	Rules       RuleSet    // Validation rules for values of this attribute.
	Version     int64      // Incremented on every mutation.
	CreatedAt   time.Time  // Timestamp of creation.
	UpdatedAt   time.Time  // Timestamp of last mutation.
	DeletedAt   *time.Time // Soft-delete marker; nil while live.
}

// CheckPayload validates a payload against the attribute's data type and
// rules and returns the payload normalized to its canonical Go
// representation (int64, float64, bool, string, time.Time, or a
// JSON-marshalable value). Returns a Violation unwrapping to ErrValidation
// on type or rule failure.
func (a *Attribute) CheckPayload(payload any) (any, error) {
	if payload == nil {
		return nil, a.violation("payload-type", "payload must not be nil")
	}
	switch a.DataType {
	case DataTypeText:
		s, ok := payload.(string)
		if !ok {
			return nil, a.violation("payload-type", fmt.Sprintf("expected text, got %T", payload))
		}
		return s, a.checkText(s)
	case DataTypeInteger:
		n, ok := asInteger(payload)
		if !ok {
			return nil, a.violation("payload-type", fmt.Sprintf("expected integer, got %T", payload))
		}
		return n, a.checkNumber(float64(n))
	case DataTypeFloat:
		f, ok := asFloat(payload)
		if !ok {
			return nil, a.violation("payload-type", fmt.Sprintf("expected float, got %T", payload))
		}
		return f, a.checkNumber(f)
	case DataTypeBoolean:
		b, ok := payload.(bool)
		if !ok {
			return nil, a.violation("payload-type", fmt.Sprintf("expected boolean, got %T", payload))
		}
		return b, nil
	case DataTypeTimestamp:
		switch v := payload.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, a.violation("payload-type", fmt.Sprintf("timestamp does not parse as RFC3339: %v", err))
			}
			return ts.UTC(), nil
		default:
			return nil, a.violation("payload-type", fmt.Sprintf("expected timestamp, got %T", payload))
		}
	case DataTypeJSON:
		if _, err := json.Marshal(payload); err != nil {
			return nil, a.violation("payload-type", fmt.Sprintf("payload is not JSON-marshalable: %v", err))
		}
		return payload, nil
	default:
		return nil, a.violation("payload-type", fmt.Sprintf("unrecognized data type %q", a.DataType))
	}
}

func (a *Attribute) checkText(s string) error {
	r := a.Rules
	if r.MinLength != nil && len(s) < *r.MinLength {
		return a.violation("rule-min-length", fmt.Sprintf("length %d below minimum %d", len(s), *r.MinLength))
	}
	if r.MaxLength != nil && len(s) > *r.MaxLength {
		return a.violation("rule-max-length", fmt.Sprintf("length %d above maximum %d", len(s), *r.MaxLength))
	}
	if r.Pattern != "" {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return a.violation("rule-consistency", fmt.Sprintf("pattern does not compile: %v", err))
		}
		if !re.MatchString(s) {
			return a.violation("rule-pattern", fmt.Sprintf("%q does not match pattern %q", s, r.Pattern))
		}
	}
	if len(r.Enum) > 0 {
		for _, opt := range r.Enum {
			if s == opt {
				return nil
			}
		}
		return a.violation("rule-enum", fmt.Sprintf("%q is not an allowed option", s))
	}
	return nil
}

func (a *Attribute) checkNumber(f float64) error {
	r := a.Rules
	if r.Min != nil && f < *r.Min {
		return a.violation("rule-min", fmt.Sprintf("%v below minimum %v", f, *r.Min))
	}
	if r.Max != nil && f > *r.Max {
		return a.violation("rule-max", fmt.Sprintf("%v above maximum %v", f, *r.Max))
	}
	return nil
}

func (a *Attribute) violation(invariant, detail string) *Violation {
	return NewViolation(ErrValidation, invariant, "", a.AttributeID, detail)
}

// asInteger converts the payload representations produced by Go callers and
// JSON decoding into an int64. Floats qualify only when integral.
func asInteger(payload any) (int64, bool) {
	switch v := payload.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v == math.Trunc(v) {
			return int64(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
	}
	return 0, false
}

// asFloat converts numeric payload representations into a float64.
func asFloat(payload any) (float64, bool) {
	switch v := payload.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}
