package entitymanager

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Operator is the comparison applied by a Predicate.
type Operator string

const (
	// OpEq matches when the field equals the value.
	OpEq Operator = "eq"
	// OpNe matches when the field differs from the value.
	OpNe Operator = "ne"
	// OpIn matches when a scalar field equals one of the values.
	OpIn Operator = "in"
	// OpNin matches when a scalar field equals none of the values.
	OpNin Operator = "nin"
	// OpAll matches when a list field contains every value, in any order.
	OpAll Operator = "all"
	// OpExists matches on presence (true) or absence (false) of the field.
	OpExists Operator = "exists"
)

var mongoOperators = map[Operator]string{
	OpEq:     "$eq",
	OpNe:     "$ne",
	OpIn:     "$in",
	OpNin:    "$nin",
	OpAll:    "$all",
	OpExists: "$exists",
}

// Predicate is one field-path condition. Path is dotted to reach into
// embedded documents, e.g. "meta.comments".
type Predicate struct {
	Path  string
	Op    Operator
	Value any
}

// Criteria is a conjunction of predicates.
type Criteria []Predicate

func Eq(path string, value any) Predicate { return Predicate{Path: path, Op: OpEq, Value: value} }

func Ne(path string, value any) Predicate { return Predicate{Path: path, Op: OpNe, Value: value} }

func In[V any](path string, values ...V) Predicate {
	return Predicate{Path: path, Op: OpIn, Value: values}
}

func NotIn[V any](path string, values ...V) Predicate {
	return Predicate{Path: path, Op: OpNin, Value: values}
}

func All[V any](path string, values ...V) Predicate {
	return Predicate{Path: path, Op: OpAll, Value: values}
}

func Exists(path string, exists bool) Predicate {
	return Predicate{Path: path, Op: OpExists, Value: exists}
}

// Where builds criteria from a property bag. Slice values become OpAll, anything
// else OpEq. Keys are sorted so the resulting filter is deterministic.
func Where(properties map[string]any) Criteria {
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c := make(Criteria, 0, len(keys))
	for _, k := range keys {
		v := properties[k]
		if isList(v) {
			c = append(c, Predicate{Path: k, Op: OpAll, Value: v})
		} else {
			c = append(c, Eq(k, v))
		}
	}
	return c
}

// And returns a new Criteria with the extra predicates appended.
func (c Criteria) And(preds ...Predicate) Criteria {
	out := make(Criteria, 0, len(c)+len(preds))
	out = append(out, c...)
	return append(out, preds...)
}

// Filter translates the criteria into a MongoDB filter document. Predicates on
// the same path are merged into one operator document, in order of appearance.
func (c Criteria) Filter() (bson.D, error) {
	filter := bson.D{}
	index := make(map[string]int, len(c))
	for i, p := range c {
		if err := validatePath(p.Path); err != nil {
			return nil, fmt.Errorf("predicate %d: %w", i, err)
		}
		mop, ok := mongoOperators[p.Op]
		if !ok {
			return nil, fmt.Errorf("%w: predicate %d: unknown operator %q", ErrInvalidCriteria, i, p.Op)
		}
		if err := validateValue(p); err != nil {
			return nil, fmt.Errorf("predicate %d: %w", i, err)
		}

		cond := bson.E{Key: mop, Value: p.Value}
		if pos, seen := index[p.Path]; seen {
			ops := filter[pos].Value.(bson.D)
			filter[pos].Value = append(ops, cond)
			continue
		}
		index[p.Path] = len(filter)
		filter = append(filter, bson.E{Key: p.Path, Value: bson.D{cond}})
	}
	return filter, nil
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty field path", ErrInvalidCriteria)
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return fmt.Errorf("%w: empty segment in path %q", ErrInvalidCriteria, path)
		}
		if strings.HasPrefix(seg, "$") {
			return fmt.Errorf("%w: operator segment in path %q", ErrInvalidCriteria, path)
		}
		if strings.ContainsAny(seg, " \t\n") {
			return fmt.Errorf("%w: whitespace in path %q", ErrInvalidCriteria, path)
		}
	}
	return nil
}

func validateValue(p Predicate) error {
	switch p.Op {
	case OpIn, OpNin, OpAll:
		if !isList(p.Value) {
			return fmt.Errorf("%w: %s on %q needs a list value", ErrInvalidCriteria, p.Op, p.Path)
		}
		if reflect.ValueOf(p.Value).Len() == 0 {
			return fmt.Errorf("%w: %s on %q needs at least one value", ErrInvalidCriteria, p.Op, p.Path)
		}
	case OpExists:
		if _, ok := p.Value.(bool); !ok {
			return fmt.Errorf("%w: exists on %q needs a bool", ErrInvalidCriteria, p.Path)
		}
	}
	return nil
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	if _, raw := v.([]byte); raw {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}
