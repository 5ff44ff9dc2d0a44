package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrUnknownConditionType is returned when decoding a condition whose type tag is not recognized.
var ErrUnknownConditionType = errors.New("unknown condition type")

// ConditionKind is the discriminator stored in the "type" member of a condition document.
type ConditionKind string

const (
	KindSimple  ConditionKind = "simple"
	KindDerived ConditionKind = "calc"
)

// Condition is one entry of a strategy. It is either a *SimpleCondition or a *DerivedCondition.
type Condition interface {
	ConditionID() string
	Kind() ConditionKind
	Logic() LogicOp

	setID(id string)
	setLogic(op LogicOp)
	apply(p ConditionPatch)
	clone() Condition
}

// Operand is the raw text of a user-entered number. Parsing is deferred to
// evaluation so that malformed input degrades to NaN instead of failing.
type Operand string

// Num builds an Operand from a float.
func Num(v float64) Operand {
	return Operand(strconv.FormatFloat(v, 'f', -1, 64))
}

// IsEmpty reports whether the operand carries no text.
func (o Operand) IsEmpty() bool {
	return strings.TrimSpace(string(o)) == ""
}

// Float parses the operand. Empty or malformed text yields NaN.
func (o Operand) Float() float64 {
	s := strings.TrimSpace(string(o))
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// MarshalJSON writes numeric text as a JSON number and anything else as a string.
// An empty operand is written as null.
func (o Operand) MarshalJSON() ([]byte, error) {
	s := string(o)
	if s == "" {
		return []byte("null"), nil
	}
	if json.Valid([]byte(s)) {
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return []byte(s), nil
		}
	}
	return json.Marshal(s)
}

// UnmarshalJSON accepts a number, a string or null.
func (o *Operand) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*o = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = Operand(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("operand must be a number, string or null: %w", err)
		}
		*o = Operand(n.String())
	}
	return nil
}

// SimpleCondition compares a single field against one target, or two for BETWEEN.
type SimpleCondition struct {
	ID       string
	Field    string
	Operator Operator
	Value    Operand
	Value2   Operand
	LogicOp  LogicOp
}

// DerivedCondition combines two fields with a calc operator and compares the result.
// BETWEEN is not supported here and always evaluates to false.
type DerivedCondition struct {
	ID       string
	Field1   string
	CalcOp   CalcOp
	Field2   string
	Operator Operator
	Value    Operand
	LogicOp  LogicOp
}

// NewSimpleCondition returns a simple condition joined with AND.
func NewSimpleCondition(field string, op Operator, value Operand) *SimpleCondition {
	return &SimpleCondition{
		ID:       uuid.New().String(),
		Field:    field,
		Operator: op,
		Value:    value,
		LogicOp:  LogicAnd,
	}
}

// NewBetweenCondition returns a BETWEEN condition joined with AND.
func NewBetweenCondition(field string, lo, hi Operand) *SimpleCondition {
	c := NewSimpleCondition(field, OpBetween, lo)
	c.Value2 = hi
	return c
}

// NewDerivedCondition returns a derived condition joined with AND.
func NewDerivedCondition(field1 string, calc CalcOp, field2 string, op Operator, value Operand) *DerivedCondition {
	return &DerivedCondition{
		ID:       uuid.New().String(),
		Field1:   field1,
		CalcOp:   calc,
		Field2:   field2,
		Operator: op,
		Value:    value,
		LogicOp:  LogicAnd,
	}
}

// DefaultSimpleCondition is the editor default: pb < 1.
func DefaultSimpleCondition() *SimpleCondition {
	return NewSimpleCondition(FieldPB, OpLT, "1")
}

// DefaultDerivedCondition is the editor default: pe × pb < 22.5 (the Graham number).
func DefaultDerivedCondition() *DerivedCondition {
	return NewDerivedCondition(FieldPE, CalcMul, FieldPB, OpLT, "22.5")
}

func (c *SimpleCondition) ConditionID() string { return c.ID }
func (c *SimpleCondition) Kind() ConditionKind { return KindSimple }
func (c *SimpleCondition) Logic() LogicOp      { return c.LogicOp }
func (c *SimpleCondition) setID(id string)     { c.ID = id }
func (c *SimpleCondition) setLogic(op LogicOp) { c.LogicOp = op }

func (c *SimpleCondition) clone() Condition {
	cp := *c
	return &cp
}

func (c *SimpleCondition) apply(p ConditionPatch) {
	if p.Field != nil {
		c.Field = *p.Field
	}
	if p.Operator != nil {
		c.Operator = *p.Operator
	}
	if p.Value != nil {
		c.Value = *p.Value
	}
	if p.Value2 != nil {
		c.Value2 = *p.Value2
	}
	if p.LogicOp != nil {
		c.LogicOp = *p.LogicOp
	}
}

func (c *DerivedCondition) ConditionID() string { return c.ID }
func (c *DerivedCondition) Kind() ConditionKind { return KindDerived }
func (c *DerivedCondition) Logic() LogicOp      { return c.LogicOp }
func (c *DerivedCondition) setID(id string)     { c.ID = id }
func (c *DerivedCondition) setLogic(op LogicOp) { c.LogicOp = op }

func (c *DerivedCondition) clone() Condition {
	cp := *c
	return &cp
}

func (c *DerivedCondition) apply(p ConditionPatch) {
	if p.Field1 != nil {
		c.Field1 = *p.Field1
	}
	if p.CalcOp != nil {
		c.CalcOp = *p.CalcOp
	}
	if p.Field2 != nil {
		c.Field2 = *p.Field2
	}
	if p.Operator != nil {
		c.Operator = *p.Operator
	}
	if p.Value != nil {
		c.Value = *p.Value
	}
	if p.LogicOp != nil {
		c.LogicOp = *p.LogicOp
	}
}

// ConditionPatch is a partial update. Nil members are left untouched and
// members that do not exist on the target kind are ignored.
type ConditionPatch struct {
	Field    *string   `json:"field,omitempty"`
	Field1   *string   `json:"field1,omitempty"`
	CalcOp   *CalcOp   `json:"calcOp,omitempty"`
	Field2   *string   `json:"field2,omitempty"`
	Operator *Operator `json:"operator,omitempty"`
	Value    *Operand  `json:"value,omitempty"`
	Value2   *Operand  `json:"value2,omitempty"`
	LogicOp  *LogicOp  `json:"logicOp,omitempty"`
}

// conditionDoc is the stored shape of both condition kinds.
type conditionDoc struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Type     ConditionKind   `json:"type"`
	Field    string          `json:"field,omitempty"`
	Field1   string          `json:"field1,omitempty"`
	CalcOp   CalcOp          `json:"calcOp,omitempty"`
	Field2   string          `json:"field2,omitempty"`
	Operator Operator        `json:"operator"`
	Value    Operand         `json:"value"`
	Value2   *Operand        `json:"value2,omitempty"`
	LogicOp  LogicOp         `json:"logicOp"`
}

// MarshalJSON writes the condition with its "simple" type tag.
func (c *SimpleCondition) MarshalJSON() ([]byte, error) {
	id, _ := json.Marshal(c.ID)
	v2 := c.Value2
	return json.Marshal(conditionDoc{
		ID:       id,
		Type:     KindSimple,
		Field:    c.Field,
		Operator: c.Operator,
		Value:    c.Value,
		Value2:   &v2,
		LogicOp:  c.LogicOp,
	})
}

// MarshalJSON writes the condition with its "calc" type tag.
func (c *DerivedCondition) MarshalJSON() ([]byte, error) {
	id, _ := json.Marshal(c.ID)
	return json.Marshal(conditionDoc{
		ID:       id,
		Type:     KindDerived,
		Field1:   c.Field1,
		CalcOp:   c.CalcOp,
		Field2:   c.Field2,
		Operator: c.Operator,
		Value:    c.Value,
		LogicOp:  c.LogicOp,
	})
}

// DecodeCondition parses a single condition document.
func DecodeCondition(data []byte) (Condition, error) {
	var doc conditionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode condition: %w", err)
	}

	id := decodeID(doc.ID)
	logic := doc.LogicOp
	if logic == "" {
		logic = LogicAnd
	}

	switch doc.Type {
	case KindSimple:
		c := &SimpleCondition{
			ID:       id,
			Field:    doc.Field,
			Operator: doc.Operator,
			Value:    doc.Value,
			LogicOp:  logic,
		}
		if doc.Value2 != nil {
			c.Value2 = *doc.Value2
		}
		return c, nil
	case KindDerived:
		return &DerivedCondition{
			ID:       id,
			Field1:   doc.Field1,
			CalcOp:   doc.CalcOp,
			Field2:   doc.Field2,
			Operator: doc.Operator,
			Value:    doc.Value,
			LogicOp:  logic,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownConditionType, doc.Type)
	}
}

// decodeID accepts both string ids and the numeric ids older documents carry.
func decodeID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Conditions is the ordered condition list of a strategy.
type Conditions []Condition

// UnmarshalJSON decodes a heterogeneous list using each entry's type tag.
func (cs *Conditions) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Conditions, 0, len(raws))
	for i, raw := range raws {
		c, err := DecodeCondition(raw)
		if err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
		out = append(out, c)
	}
	*cs = out
	return nil
}

// MarshalJSON always writes an array, never null.
func (cs Conditions) MarshalJSON() ([]byte, error) {
	if cs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Condition(cs))
}
