package updateexpr

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/exp/constraints"
)

type number interface {
	constraints.Integer | constraints.Float
}

// Remove deletes the attribute from the item.
func Remove(attributeName string) (Action, error) {
	name, err := NamePlaceholder(attributeName)
	if err != nil {
		return Action{}, err
	}
	return newAction(ClauseRemove, attributeName, name,
		map[string]string{name: attributeName}, nil, true), nil
}

// RemoveListElement deletes the element at index from a list attribute.
// Later elements shift down by one.
func RemoveListElement(attributeName string, index int) (Action, error) {
	ref, err := IndexedKeyRef(attributeName, index)
	if err != nil {
		return Action{}, err
	}
	name, _ := NamePlaceholder(attributeName)
	return newAction(ClauseRemove, attributeName, ref,
		map[string]string{name: attributeName}, nil, true), nil
}

// Set replaces the attribute with value, creating it if needed.
//
// value is encoded with attributevalue.Marshal unless it already is a
// types.AttributeValue.
func Set(attributeName string, value any) (Action, error) {
	name, val, av, err := refs(attributeName, "value", value)
	if err != nil {
		return Action{}, err
	}
	if err := checkStorable("value", av); err != nil {
		return Action{}, err
	}
	return newAction(ClauseSet, attributeName, name+" = "+val,
		map[string]string{name: attributeName},
		map[string]types.AttributeValue{val: av}, true), nil
}

// SetIfNotExists sets the attribute only when the item does not have it yet.
func SetIfNotExists(attributeName string, value any) (Action, error) {
	name, val, av, err := refs(attributeName, "value", value)
	if err != nil {
		return Action{}, err
	}
	if err := checkStorable("value", av); err != nil {
		return Action{}, err
	}
	fragment := fmt.Sprintf("%s = if_not_exists(%s, %s)", name, name, val)
	return newAction(ClauseSet, attributeName, fragment,
		map[string]string{name: attributeName},
		map[string]types.AttributeValue{val: av}, true), nil
}

// AppendToList appends elements to a list attribute, creating the list if missing.
// elements must encode to a list. Appending is not idempotent.
func AppendToList(attributeName string, elements any) (Action, error) {
	name, val, av, err := refs(attributeName, "elements", elements)
	if err != nil {
		return Action{}, err
	}
	if _, ok := av.(*types.AttributeValueMemberL); !ok {
		return Action{}, validationErr("elements", fmt.Sprintf("must be a list, got %s", kindOf(av)))
	}
	empty := val + emptyListSuffix
	fragment := fmt.Sprintf("%s = list_append(if_not_exists(%s, %s), %s)", name, name, empty, val)
	return newAction(ClauseSet, attributeName, fragment,
		map[string]string{name: attributeName},
		map[string]types.AttributeValue{
			val:   av,
			empty: &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
		}, false), nil
}

// Add increments a number attribute by delta, or adds the elements of a set delta to a
// set attribute. Missing attributes start from zero or the empty set.
func Add(attributeName string, delta any) (Action, error) {
	name, val, av, err := refs(attributeName, "delta", delta)
	if err != nil {
		return Action{}, err
	}
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
	case *types.AttributeValueMemberSS, *types.AttributeValueMemberNS, *types.AttributeValueMemberBS:
		if setLen(v) == 0 {
			return Action{}, validationErr("delta", "must not be an empty set")
		}
	default:
		return Action{}, validationErr("delta", fmt.Sprintf("must be a number or a set, got %s", kindOf(av)))
	}
	return newAction(ClauseAdd, attributeName, name+" "+val,
		map[string]string{name: attributeName},
		map[string]types.AttributeValue{val: av}, false), nil
}

// AddNumber is Add for Go numbers.
func AddNumber[T number](attributeName string, delta T) (Action, error) {
	return Add(attributeName, delta)
}

// DeleteFromSet removes elements from a set attribute.
// elements must be a non-empty set of the attribute's set type.
func DeleteFromSet(attributeName string, elements any) (Action, error) {
	name, val, av, err := refs(attributeName, "elements", elements)
	if err != nil {
		return Action{}, err
	}
	switch v := av.(type) {
	case *types.AttributeValueMemberSS, *types.AttributeValueMemberNS, *types.AttributeValueMemberBS:
		if setLen(v) == 0 {
			return Action{}, validationErr("elements", "must not be an empty set")
		}
	default:
		return Action{}, validationErr("elements", fmt.Sprintf("must be a set, got %s", kindOf(av)))
	}
	return newAction(ClauseDelete, attributeName, name+" "+val,
		map[string]string{name: attributeName},
		map[string]types.AttributeValue{val: av}, true), nil
}

// StringSet encodes values as a DynamoDB string set.
func StringSet(values ...string) types.AttributeValue {
	return &types.AttributeValueMemberSS{Value: values}
}

// NumberSet encodes values as a DynamoDB number set.
func NumberSet[T number](values ...T) types.AttributeValue {
	ns := make([]string, 0, len(values))
	for _, v := range values {
		ns = append(ns, formatNumber(v))
	}
	return &types.AttributeValueMemberNS{Value: ns}
}

func formatNumber[T number](v T) string {
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return strconv.FormatInt(rv.Int(), 10)
	case rv.CanUint():
		return strconv.FormatUint(rv.Uint(), 10)
	default:
		return strconv.FormatFloat(rv.Float(), 'f', -1, rv.Type().Bits())
	}
}

// BinarySet encodes values as a DynamoDB binary set.
func BinarySet(values ...[]byte) types.AttributeValue {
	return &types.AttributeValueMemberBS{Value: values}
}

func refs(attributeName, field string, value any) (name, val string, av types.AttributeValue, err error) {
	name, err = NamePlaceholder(attributeName)
	if err != nil {
		return "", "", nil, err
	}
	val, _ = ValuePlaceholder(attributeName)
	av, err = encode(field, value)
	if err != nil {
		return "", "", nil, err
	}
	return name, val, av, nil
}

func encode(field string, value any) (types.AttributeValue, error) {
	if value == nil {
		return nil, validationErr(field, "is required")
	}
	if av, ok := value.(types.AttributeValue); ok {
		if isNilValue(av) {
			return nil, validationErr(field, "is required")
		}
		return av, nil
	}
	av, err := attributevalue.Marshal(value)
	if err != nil {
		return nil, &ValidationError{Field: field, Reason: fmt.Sprintf("cannot encode %T", value), Err: err}
	}
	// nil pointers, maps and slices marshal to NULL
	if _, ok := av.(*types.AttributeValueMemberNULL); ok {
		return nil, validationErr(field, fmt.Sprintf("is required, %T encodes to NULL", value))
	}
	return av, nil
}

// checkStorable rejects values DynamoDB refuses to store, such as empty sets.
func checkStorable(field string, av types.AttributeValue) error {
	switch av.(type) {
	case *types.AttributeValueMemberSS, *types.AttributeValueMemberNS, *types.AttributeValueMemberBS:
		if setLen(av) == 0 {
			return validationErr(field, fmt.Sprintf("must not be an empty %s", kindOf(av)))
		}
	}
	return nil
}

func setLen(av types.AttributeValue) int {
	switch v := av.(type) {
	case *types.AttributeValueMemberSS:
		return len(v.Value)
	case *types.AttributeValueMemberNS:
		return len(v.Value)
	case *types.AttributeValueMemberBS:
		return len(v.Value)
	default:
		return 0
	}
}

func kindOf(av types.AttributeValue) string {
	switch av.(type) {
	case *types.AttributeValueMemberS:
		return "S"
	case *types.AttributeValueMemberN:
		return "N"
	case *types.AttributeValueMemberB:
		return "B"
	case *types.AttributeValueMemberBOOL:
		return "BOOL"
	case *types.AttributeValueMemberNULL:
		return "NULL"
	case *types.AttributeValueMemberSS:
		return "SS"
	case *types.AttributeValueMemberNS:
		return "NS"
	case *types.AttributeValueMemberBS:
		return "BS"
	case *types.AttributeValueMemberM:
		return "M"
	case *types.AttributeValueMemberL:
		return "L"
	default:
		return fmt.Sprintf("%T", av)
	}
}
