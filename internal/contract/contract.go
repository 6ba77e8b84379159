package contract

// FieldType is the declared runtime type of a required output field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// FieldSpec declares one required field of a stage's output. Contracts are
// allow-lists of required shape: fields not listed here are ignored, so
// upstream stages can grow additive fields without breaking the pipeline.
type FieldSpec struct {
	Name     string    `yaml:"name"`
	Type     FieldType `yaml:"type"`
	MinItems int       `yaml:"min_items,omitempty"` // arrays only
	Min      *float64  `yaml:"min,omitempty"`       // numbers only
	Max      *float64  `yaml:"max,omitempty"`       // numbers only
	// ItemFields declares required fields of each array element when the
	// elements are objects. Nil means elements are unconstrained.
	ItemFields []FieldSpec `yaml:"item_fields,omitempty"`
}

// Contract is the declarative required-shape description for one stage's
// output. Static configuration: consulted, never mutated.
type Contract struct {
	Stage  string      `yaml:"stage"`
	Array  bool        `yaml:"array,omitempty"` // top-level value is an array
	Fields []FieldSpec `yaml:"fields"`
}

// BuildJSONSchema returns the contract as a JSON-Schema (draft 2020-12
// subset) generic map. additionalProperties stays open on purpose.
func (c *Contract) BuildJSONSchema() map[string]any {
	obj := objectSchema(c.Fields)
	if c.Array {
		return map[string]any{
			"type":  "array",
			"items": obj,
		}
	}
	return obj
}

func objectSchema(fields []FieldSpec) map[string]any {
	props := map[string]any{}
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		props[f.Name] = fieldSchema(f)
		required = append(required, f.Name)
	}
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func fieldSchema(f FieldSpec) map[string]any {
	s := map[string]any{"type": string(f.Type)}
	switch f.Type {
	case TypeArray:
		if f.MinItems > 0 {
			s["minItems"] = f.MinItems
		}
		if len(f.ItemFields) > 0 {
			s["items"] = objectSchema(f.ItemFields)
		}
	case TypeNumber:
		if f.Min != nil {
			s["minimum"] = *f.Min
		}
		if f.Max != nil {
			s["maximum"] = *f.Max
		}
	}
	return s
}

// Ptr is a convenience for declaring numeric bounds inline.
func Ptr(v float64) *float64 { return &v }
