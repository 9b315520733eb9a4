package updateexpr

import (
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/samber/lo"
)

type ItemOption func(*itemOpts)

type itemOpts struct {
	ignoreNulls bool
	skip        map[string]bool
}

// IgnoreNulls leaves NULL attributes untouched instead of removing them.
func IgnoreNulls() ItemOption {
	return func(o *itemOpts) { o.ignoreNulls = true }
}

// Skip leaves the named attributes out, typically the item's key attributes.
func Skip(attributeNames ...string) ItemOption {
	return func(o *itemOpts) {
		for _, n := range attributeNames {
			o.skip[n] = true
		}
	}
}

// ActionsFromItem turns an item into the actions that write it over an existing item:
// a SET for every attribute, and a REMOVE for every NULL attribute unless IgnoreNulls is given.
//
// item is either a map[string]types.AttributeValue or anything attributevalue.MarshalMap
// accepts. Actions are ordered by attribute name.
func ActionsFromItem(item any, opts ...ItemOption) ([]Action, error) {
	o := itemOpts{skip: make(map[string]bool)}
	for _, opt := range opts {
		opt(&o)
	}

	doc, ok := item.(map[string]types.AttributeValue)
	if !ok {
		if item == nil {
			return nil, validationErr("item", "is required")
		}
		var err error
		doc, err = attributevalue.MarshalMap(item)
		if err != nil {
			return nil, &ValidationError{Field: "item", Reason: fmt.Sprintf("cannot encode %T", item), Err: err}
		}
	}

	attrs := lo.Filter(lo.Keys(doc), func(name string, _ int) bool { return !o.skip[name] })
	slices.Sort(attrs)

	actions := make([]Action, 0, len(attrs))
	for _, name := range attrs {
		var (
			a   Action
			err error
		)
		if _, null := doc[name].(*types.AttributeValueMemberNULL); null {
			if o.ignoreNulls {
				continue
			}
			a, err = Remove(name)
		} else {
			a, err = Set(name, doc[name])
		}
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}
