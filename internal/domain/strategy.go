package domain

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// Validation failures, reported in this order.
var (
	ErrNoConditions      = errors.New("至少添加一个条件")
	ErrEmptyValue        = errors.New("条件值不能为空")
	ErrInvalidValue      = errors.New("条件值必须是数字")
	ErrMissingRangeValue = errors.New("区间条件需要两个值")
)

// UnnamedStrategy is shown for a strategy without a name.
const UnnamedStrategy = "未命名策略"

// Direction is the way a condition moves within its strategy.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Strategy is an ordered list of conditions folded left to right.
// Mutators are total: an unknown id is a no-op.
type Strategy struct {
	ID          string     `json:"id,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Conditions  Conditions `json:"conditions"`
	CreatedAt   time.Time  `json:"createdAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt,omitempty"`
}

// DisplayName returns the name, or a placeholder when it is empty.
func (s *Strategy) DisplayName() string {
	if s.Name == "" {
		return UnnamedStrategy
	}
	return s.Name
}

func (s *Strategy) indexOf(id string) int {
	for i, c := range s.Conditions {
		if c.ConditionID() == id {
			return i
		}
	}
	return -1
}

// Condition returns the condition with the given id.
func (s *Strategy) Condition(id string) (Condition, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.Conditions[i], true
	}
	return nil, false
}

// Append adds c at the end. A missing id, or one already used in the
// strategy, is replaced with a fresh one.
func (s *Strategy) Append(c Condition) Condition {
	if id := c.ConditionID(); id == "" || s.indexOf(id) >= 0 {
		c.setID(uuid.New().String())
	}
	s.Conditions = append(s.Conditions, c)
	return c
}

// Remove deletes the condition with the given id.
func (s *Strategy) Remove(id string) {
	i := s.indexOf(id)
	if i < 0 {
		return
	}
	s.Conditions = append(s.Conditions[:i:i], s.Conditions[i+1:]...)
}

// Update applies a partial patch to the condition with the given id.
func (s *Strategy) Update(id string, p ConditionPatch) {
	if i := s.indexOf(id); i >= 0 {
		s.Conditions[i].apply(p)
	}
}

// Move swaps the condition with its neighbour. Moving the first condition
// up or the last one down does nothing.
func (s *Strategy) Move(id string, dir Direction) {
	i := s.indexOf(id)
	if i < 0 {
		return
	}
	j := i + 1
	if dir == Up {
		j = i - 1
	}
	if j < 0 || j >= len(s.Conditions) {
		return
	}
	s.Conditions[i], s.Conditions[j] = s.Conditions[j], s.Conditions[i]
}

// ToggleLogicOp flips the logic operator of the condition with the given id.
func (s *Strategy) ToggleLogicOp(id string) {
	if i := s.indexOf(id); i >= 0 {
		c := s.Conditions[i]
		c.setLogic(c.Logic().Toggle())
	}
}

// SetName renames the strategy.
func (s *Strategy) SetName(name string) { s.Name = name }

// SetDescription replaces the free-text description.
func (s *Strategy) SetDescription(description string) { s.Description = description }

// Clear removes every condition along with the name and description.
func (s *Strategy) Clear() {
	s.Conditions = nil
	s.Name = ""
	s.Description = ""
}

// HasDerived reports whether any condition is derived.
func (s *Strategy) HasDerived() bool {
	for _, c := range s.Conditions {
		if c.Kind() == KindDerived {
			return true
		}
	}
	return false
}

// EnsureIDs assigns ids to conditions loaded without one. A later condition
// repeating an earlier id gets a fresh one; the first keeps it.
func (s *Strategy) EnsureIDs() {
	seen := make(map[string]bool, len(s.Conditions))
	for _, c := range s.Conditions {
		if id := c.ConditionID(); id == "" || seen[id] {
			c.setID(uuid.New().String())
		}
		seen[c.ConditionID()] = true
	}
}

// Clone returns a deep copy.
func (s *Strategy) Clone() *Strategy {
	cp := *s
	if s.Conditions != nil {
		cp.Conditions = make(Conditions, len(s.Conditions))
		for i, c := range s.Conditions {
			cp.Conditions[i] = c.clone()
		}
	}
	return &cp
}

// Validation is the outcome of Strategy.Validate.
type Validation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`

	err error
}

// Err returns the first violation, or nil for a valid strategy.
func (v Validation) Err() error { return v.err }

func invalid(err error) Validation {
	return Validation{Valid: false, Error: err.Error(), err: err}
}

// Validate reports the first violation found: no conditions, then per condition
// an empty or non-numeric value, then a missing second value for BETWEEN.
func (s *Strategy) Validate() Validation {
	if len(s.Conditions) == 0 {
		return invalid(ErrNoConditions)
	}

	for _, c := range s.Conditions {
		var value, value2 Operand
		var op Operator
		switch cc := c.(type) {
		case *SimpleCondition:
			value, value2, op = cc.Value, cc.Value2, cc.Operator
		case *DerivedCondition:
			value, op = cc.Value, cc.Operator
		}

		if value.IsEmpty() {
			return invalid(ErrEmptyValue)
		}
		if !isNumber(value) {
			return invalid(ErrInvalidValue)
		}
		// Derived conditions carry no second value, so a derived BETWEEN
		// always fails here.
		if op == OpBetween && (value2.IsEmpty() || !isNumber(value2)) {
			return invalid(ErrMissingRangeValue)
		}
	}

	return Validation{Valid: true}
}

func isNumber(o Operand) bool {
	return !math.IsNaN(o.Float())
}
