package updateexpr

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Expression is the result of merging actions: an UpdateExpression and the
// ExpressionAttributeNames / ExpressionAttributeValues it references.
type Expression struct {
	expression string
	names      map[string]string
	values     map[string]types.AttributeValue
	actions    []Action
}

// String returns the UpdateExpression, e.g. "SET #a = :a REMOVE #b".
func (e Expression) String() string { return e.expression }

// Update returns the UpdateExpression as the pointer the SDK inputs expect.
// It is nil for the zero Expression.
func (e Expression) Update() *string {
	if e.expression == "" {
		return nil
	}
	s := e.expression
	return &s
}

// Names returns a copy of the name placeholders, nil when there are none.
func (e Expression) Names() map[string]string {
	if len(e.names) == 0 {
		return nil
	}
	return maps.Clone(e.names)
}

// Values returns a copy of the value placeholders, nil when there are none.
// DynamoDB rejects an empty ExpressionAttributeValues map, so nil must be sent instead.
func (e Expression) Values() map[string]types.AttributeValue {
	if len(e.values) == 0 {
		return nil
	}
	return maps.Clone(e.values)
}

// Actions returns the actions the expression was rendered from, after coalescing.
func (e Expression) Actions() []Action { return slices.Clone(e.actions) }

// Triple returns the three fields of an UpdateItem request built from this expression.
func (e Expression) Triple() (string, map[string]string, map[string]types.AttributeValue) {
	return e.expression, e.Names(), e.Values()
}

// Merge combines actions into one Expression.
//
// Actions are grouped by clause and rendered in the order SET, REMOVE, ADD, DELETE,
// keeping the input order inside each group. Identical actions are coalesced. Two
// different actions on the same attribute conflict, except removals of distinct
// elements of the same list.
func Merge(actions ...Action) (Expression, error) {
	if len(actions) == 0 {
		return Expression{}, validationErr("", "no-op update: no actions to merge")
	}

	kept := make([]Action, 0, len(actions))
	byTarget := make(map[string][]int)
outer:
	for i, a := range actions {
		if a.isZero() {
			return Expression{}, validationErr(fmt.Sprintf("actions[%d]", i), "is not a constructed action")
		}
		for _, j := range byTarget[a.target] {
			other := kept[j]
			if other.equal(a) {
				continue outer
			}
			if err := compatible(other, a); err != nil {
				return Expression{}, err
			}
		}
		byTarget[a.target] = append(byTarget[a.target], len(kept))
		kept = append(kept, a)
	}

	names := make(map[string]string)
	byName := make(map[string]string)
	values := make(map[string]types.AttributeValue)
	for _, a := range kept {
		for _, ph := range slices.Sorted(maps.Keys(a.names)) {
			name := a.names[ph]
			if prev, ok := names[ph]; ok && prev != name {
				return Expression{}, &ConflictError{
					Placeholder: ph,
					Reason:      fmt.Sprintf("bound to both %q and %q", prev, name),
				}
			}
			// one attribute reached through two placeholders escapes the per-target check
			if prev, ok := byName[name]; ok && prev != ph {
				return Expression{}, &ConflictError{
					Attribute: name,
					Reason:    fmt.Sprintf("referenced as both %s and %s", prev, ph),
				}
			}
			names[ph] = name
			byName[name] = ph
		}
		for ph, v := range a.values {
			if prev, ok := values[ph]; ok && !valuesEqual(prev, v) {
				return Expression{}, &ConflictError{
					Placeholder: ph,
					Reason:      "bound to two different values",
				}
			}
			values[ph] = v
		}
	}

	groups := make(map[ClauseType][]string, len(clauseOrder))
	for _, a := range kept {
		groups[a.clause] = append(groups[a.clause], a.fragment)
	}
	rendered := make([]string, 0, len(clauseOrder))
	for _, c := range clauseOrder {
		if fragments := groups[c]; len(fragments) > 0 {
			rendered = append(rendered, c.Keyword()+" "+strings.Join(fragments, ", "))
		}
	}
	if len(rendered) == 0 {
		return Expression{}, validationErr("", "no-op update: nothing to render")
	}

	return Expression{
		expression: strings.Join(rendered, " "),
		names:      names,
		values:     values,
		actions:    kept,
	}, nil
}

// compatible decides whether two different actions on the same attribute may share an update.
func compatible(a, b Action) error {
	if a.removesElement() && b.removesElement() {
		return nil
	}
	reason := "clauses cannot be combined on one attribute"
	switch {
	case a.clause == b.clause && a.clause == ClauseRemove:
		reason = "attribute is removed and one of its elements is removed"
	case a.clause == b.clause:
		reason = "attribute is mutated twice"
	}
	return &ConflictError{
		Attribute: a.target,
		Clauses:   []ClauseType{a.clause, b.clause},
		Reason:    reason,
	}
}
