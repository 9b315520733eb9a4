// Package updateexpr builds DynamoDB UpdateExpressions from individual attribute mutations.
//
// Each mutation is an [Action] created by one of the factories ([Set], [Remove],
// [RemoveListElement], [Add], [DeleteFromSet], ...). Actions only ever reference
// attributes and values through placeholders, the real names and encoded values are kept
// in the action's maps. [Merge] combines actions into a single [Expression]:
//
//	set, _ := updateexpr.Set("count", 5)
//	rm, _ := updateexpr.Remove("archived")
//	expr, err := updateexpr.Merge(rm, set)
//	// expr.String() == "SET #count = :count REMOVE #archived"
//
// Everything in this package is pure and safe for concurrent use.
package updateexpr

import (
	"fmt"
	"maps"
	"reflect"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/samber/lo"
)

// Action is a single validated mutation of one attribute.
// The zero value is not a valid action, use a factory or NewAction.
type Action struct {
	clause     ClauseType
	fragment   string
	names      map[string]string
	values     map[string]types.AttributeValue
	target     string
	idempotent bool
}

// NewAction builds an action from raw parts, for callers that assemble fragments
// themselves. Every placeholder in fragment must be mapped, every mapping must be
// referenced, and the fragment may not contain raw attribute names. The fragment must
// start with the path it mutates, and that path's placeholder must map to target.
func NewAction(clause ClauseType, fragment string, names map[string]string, values map[string]types.AttributeValue, target string) (Action, error) {
	if !clause.valid() {
		return Action{}, validationErr("clause", fmt.Sprintf("%s is not a known clause", clause))
	}
	if target == "" {
		return Action{}, validationErr("target", "must not be empty")
	}
	if strings.TrimSpace(fragment) == "" {
		return Action{}, validationErr("fragment", "must not be empty")
	}
	if clause == ClauseRemove && len(values) > 0 {
		return Action{}, validationErr("values", "must be empty for REMOVE")
	}
	nameTokens, valueTokens, err := scanFragment(fragment)
	if err != nil {
		return Action{}, err
	}
	if err := checkRefs("names", nameTokens, lo.Keys(names), namePrefix); err != nil {
		return Action{}, err
	}
	if err := checkRefs("values", valueTokens, lo.Keys(values), valuePrefix); err != nil {
		return Action{}, err
	}
	for ph, name := range names {
		if name == "" {
			return Action{}, validationErr("names", fmt.Sprintf("placeholder %s maps to an empty name", ph))
		}
	}
	if !strings.HasPrefix(strings.TrimSpace(fragment), namePrefix) {
		return Action{}, validationErr("fragment", "must start with the placeholder of the mutated path")
	}
	if path := nameTokens[0]; names[path] != target {
		return Action{}, validationErr("target", fmt.Sprintf("is %q but the fragment mutates %s (%q)", target, path, names[path]))
	}
	for ph, v := range values {
		if isNilValue(v) {
			return Action{}, validationErr("values", fmt.Sprintf("placeholder %s has no value", ph))
		}
	}
	idempotent := clause != ClauseAdd && !strings.Contains(fragment, "list_append")
	return newAction(clause, target, fragment, names, values, idempotent), nil
}

func newAction(clause ClauseType, target, fragment string, names map[string]string, values map[string]types.AttributeValue, idempotent bool) Action {
	return Action{
		clause:     clause,
		fragment:   fragment,
		names:      maps.Clone(names),
		values:     maps.Clone(values),
		target:     target,
		idempotent: idempotent,
	}
}

// Clause is the section of the UpdateExpression the action belongs to.
func (a Action) Clause() ClauseType { return a.clause }

// Fragment is the placeholder-only text the action contributes to its clause.
func (a Action) Fragment() string { return a.fragment }

// Names returns a copy of the name placeholder mapping.
func (a Action) Names() map[string]string { return maps.Clone(a.names) }

// Values returns a copy of the value placeholder mapping.
func (a Action) Values() map[string]types.AttributeValue { return maps.Clone(a.values) }

// Target is the top-level attribute the action mutates.
func (a Action) Target() string { return a.target }

// Idempotent reports whether applying the action twice has the same effect as once.
// ADD and list appends are not.
func (a Action) Idempotent() bool { return a.idempotent }

func (a Action) String() string {
	return a.clause.Keyword() + " " + a.fragment
}

func (a Action) isZero() bool {
	return !a.clause.valid() || a.target == "" || a.fragment == ""
}

// removesElement is true for REMOVE #list[i].
func (a Action) removesElement() bool {
	return a.clause == ClauseRemove && strings.HasSuffix(a.fragment, "]")
}

func (a Action) equal(b Action) bool {
	if a.clause != b.clause || a.fragment != b.fragment || a.target != b.target {
		return false
	}
	if !maps.Equal(a.names, b.names) {
		return false
	}
	return maps.EqualFunc(a.values, b.values, valuesEqual)
}

func valuesEqual(a, b types.AttributeValue) bool {
	return reflect.DeepEqual(a, b)
}

func isNilValue(v types.AttributeValue) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// functions that may appear in a fragment next to placeholders.
var fragmentFunctions = map[string]bool{
	"if_not_exists": true,
	"list_append":   true,
}

// scanFragment returns the name and value placeholders referenced by fragment.
// Bare identifiers other than the update functions are rejected.
func scanFragment(fragment string) (names, values []string, err error) {
	for i := 0; i < len(fragment); {
		c := fragment[i]
		switch {
		case c == '#' || c == ':':
			j := i + 1
			for j < len(fragment) && isPlaceholderChar(fragment[j]) {
				j++
			}
			if j == i+1 {
				return nil, nil, validationErr("fragment", fmt.Sprintf("dangling %q at offset %d", c, i))
			}
			if c == '#' {
				names = append(names, fragment[i:j])
			} else {
				values = append(values, fragment[i:j])
			}
			i = j
		case isPlaceholderChar(c):
			j := i
			for j < len(fragment) && isPlaceholderChar(fragment[j]) {
				j++
			}
			word := fragment[i:j]
			if !fragmentFunctions[word] && !isDigits(word) {
				return nil, nil, validationErr("fragment", fmt.Sprintf("contains raw identifier %q", word))
			}
			i = j
		case strings.IndexByte(" =,()[].+-", c) >= 0:
			i++
		default:
			return nil, nil, validationErr("fragment", fmt.Sprintf("unexpected character %q at offset %d", c, i))
		}
	}
	return names, values, nil
}

func checkRefs(field string, used, mapped []string, prefix string) error {
	mappedSet := make(map[string]bool, len(mapped))
	for _, k := range mapped {
		if !strings.HasPrefix(k, prefix) || len(k) == len(prefix) {
			return validationErr(field, fmt.Sprintf("placeholder %q must start with %q", k, prefix))
		}
		mappedSet[k] = true
	}
	usedSet := make(map[string]bool, len(used))
	for _, k := range used {
		if !mappedSet[k] {
			return validationErr(field, fmt.Sprintf("placeholder %s is used but not mapped", k))
		}
		usedSet[k] = true
	}
	for _, k := range mapped {
		if !usedSet[k] {
			return validationErr(field, fmt.Sprintf("placeholder %s is mapped but not used", k))
		}
	}
	return nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
