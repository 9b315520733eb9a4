package ddbstore

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// documentPath is a resolved path into an item, e.g. profile.tags[2].
type documentPath []pathPart

type pathPart struct {
	name    string
	index   int
	isIndex bool
}

func (p documentPath) String() string {
	var b strings.Builder
	for i, part := range p {
		switch {
		case part.isIndex:
			b.WriteString("[" + strconv.Itoa(part.index) + "]")
		case i > 0:
			b.WriteString("." + part.name)
		default:
			b.WriteString(part.name)
		}
	}
	return b.String()
}

func (p documentPath) attribute() string {
	return p[0].name
}

// overlaps reports whether one path is a prefix of (or equal to) the other.
func (p documentPath) overlaps(o documentPath) bool {
	n := min(len(p), len(o))
	for i := 0; i < n; i++ {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

func getPath(item map[string]types.AttributeValue, path documentPath) (types.AttributeValue, bool) {
	cur, ok := item[path[0].name]
	if !ok {
		return nil, false
	}
	for _, part := range path[1:] {
		cur, ok = child(cur, part)
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func child(av types.AttributeValue, part pathPart) (types.AttributeValue, bool) {
	if part.isIndex {
		l, ok := av.(*types.AttributeValueMemberL)
		if !ok || part.index >= len(l.Value) {
			return nil, false
		}
		return l.Value[part.index], true
	}
	m, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return nil, false
	}
	v, ok := m.Value[part.name]
	return v, ok
}

// setPath writes v at path. The parent of path must exist. Setting a list
// index past the end appends.
func setPath(item map[string]types.AttributeValue, path documentPath, v types.AttributeValue) error {
	if len(path) == 1 {
		item[path[0].name] = v
		return nil
	}
	parent, ok := getPath(item, path[:len(path)-1])
	if !ok {
		return validationf("the document path provided in the update expression is invalid for update: %s", path)
	}
	last := path[len(path)-1]
	switch p := parent.(type) {
	case *types.AttributeValueMemberL:
		if !last.isIndex {
			return validationf("the document path provided in the update expression is invalid for update: %s", path)
		}
		if last.index >= len(p.Value) {
			p.Value = append(p.Value, v)
		} else {
			p.Value[last.index] = v
		}
	case *types.AttributeValueMemberM:
		if last.isIndex {
			return validationf("the document path provided in the update expression is invalid for update: %s", path)
		}
		p.Value[last.name] = v
	default:
		return validationf("the document path provided in the update expression is invalid for update: %s", path)
	}
	return nil
}

// removePath deletes the attribute or element at path. Missing paths are a no-op.
func removePath(item map[string]types.AttributeValue, path documentPath) {
	if len(path) == 1 {
		delete(item, path[0].name)
		return
	}
	parent, ok := getPath(item, path[:len(path)-1])
	if !ok {
		return
	}
	last := path[len(path)-1]
	switch p := parent.(type) {
	case *types.AttributeValueMemberL:
		if last.isIndex && last.index < len(p.Value) {
			p.Value = slices.Delete(p.Value, last.index, last.index+1)
		}
	case *types.AttributeValueMemberM:
		if !last.isIndex {
			delete(p.Value, last.name)
		}
	}
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = copyAV(v)
	}
	return out
}

func copyAV(av types.AttributeValue) types.AttributeValue {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return &types.AttributeValueMemberS{Value: v.Value}
	case *types.AttributeValueMemberN:
		return &types.AttributeValueMemberN{Value: v.Value}
	case *types.AttributeValueMemberB:
		return &types.AttributeValueMemberB{Value: bytes.Clone(v.Value)}
	case *types.AttributeValueMemberBOOL:
		return &types.AttributeValueMemberBOOL{Value: v.Value}
	case *types.AttributeValueMemberNULL:
		return &types.AttributeValueMemberNULL{Value: v.Value}
	case *types.AttributeValueMemberSS:
		return &types.AttributeValueMemberSS{Value: slices.Clone(v.Value)}
	case *types.AttributeValueMemberNS:
		return &types.AttributeValueMemberNS{Value: slices.Clone(v.Value)}
	case *types.AttributeValueMemberBS:
		bs := make([][]byte, len(v.Value))
		for i, b := range v.Value {
			bs[i] = bytes.Clone(b)
		}
		return &types.AttributeValueMemberBS{Value: bs}
	case *types.AttributeValueMemberM:
		return &types.AttributeValueMemberM{Value: copyItem(v.Value)}
	case *types.AttributeValueMemberL:
		l := make([]types.AttributeValue, len(v.Value))
		for i, e := range v.Value {
			l[i] = copyAV(e)
		}
		return &types.AttributeValueMemberL{Value: l}
	default:
		return av
	}
}

// typeName is the DynamoDB type descriptor of av.
func typeName(av types.AttributeValue) string {
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

// attributeValuesEqual compares by DynamoDB semantics: numbers by value,
// sets regardless of element order.
func attributeValuesEqual(a, b types.AttributeValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return false
		}
		c, err := compareNumbers(av.Value, bv.Value)
		return err == nil && c == 0
	case *types.AttributeValueMemberB:
		bv, ok := b.(*types.AttributeValueMemberB)
		return ok && bytes.Equal(av.Value, bv.Value)
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberNULL:
		_, ok := b.(*types.AttributeValueMemberNULL)
		return ok
	case *types.AttributeValueMemberSS, *types.AttributeValueMemberNS, *types.AttributeValueMemberBS:
		if typeName(a) != typeName(b) {
			return false
		}
		x, y := setElements(a), setElements(b)
		if len(x) != len(y) {
			return false
		}
		for _, e := range x {
			if !containsElement(y, e) {
				return false
			}
		}
		return true
	case *types.AttributeValueMemberL:
		bv, ok := b.(*types.AttributeValueMemberL)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}
		for i := range av.Value {
			if !attributeValuesEqual(av.Value[i], bv.Value[i]) {
				return false
			}
		}
		return true
	case *types.AttributeValueMemberM:
		bv, ok := b.(*types.AttributeValueMemberM)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}
		for k, v := range av.Value {
			if !attributeValuesEqual(v, bv.Value[k]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// setElements flattens a set into scalar attribute values so SS, NS and BS
// share one union/difference implementation.
func setElements(av types.AttributeValue) []types.AttributeValue {
	var out []types.AttributeValue
	switch v := av.(type) {
	case *types.AttributeValueMemberSS:
		for _, s := range v.Value {
			out = append(out, &types.AttributeValueMemberS{Value: s})
		}
	case *types.AttributeValueMemberNS:
		for _, n := range v.Value {
			out = append(out, &types.AttributeValueMemberN{Value: n})
		}
	case *types.AttributeValueMemberBS:
		for _, b := range v.Value {
			out = append(out, &types.AttributeValueMemberB{Value: b})
		}
	}
	return out
}

func containsElement(set []types.AttributeValue, e types.AttributeValue) bool {
	return slices.ContainsFunc(set, func(x types.AttributeValue) bool {
		return attributeValuesEqual(x, e)
	})
}

// buildSet is the inverse of setElements for the set type of like.
func buildSet(like types.AttributeValue, elems []types.AttributeValue) types.AttributeValue {
	switch like.(type) {
	case *types.AttributeValueMemberSS:
		ss := make([]string, len(elems))
		for i, e := range elems {
			ss[i] = e.(*types.AttributeValueMemberS).Value
		}
		return &types.AttributeValueMemberSS{Value: ss}
	case *types.AttributeValueMemberNS:
		ns := make([]string, len(elems))
		for i, e := range elems {
			ns[i] = e.(*types.AttributeValueMemberN).Value
		}
		return &types.AttributeValueMemberNS{Value: ns}
	default:
		bs := make([][]byte, len(elems))
		for i, e := range elems {
			bs[i] = e.(*types.AttributeValueMemberB).Value
		}
		return &types.AttributeValueMemberBS{Value: bs}
	}
}

func isSet(av types.AttributeValue) bool {
	switch av.(type) {
	case *types.AttributeValueMemberSS, *types.AttributeValueMemberNS, *types.AttributeValueMemberBS:
		return true
	default:
		return false
	}
}

// validateValue rejects values DynamoDB refuses in requests.
func validateValue(av types.AttributeValue) error {
	switch v := av.(type) {
	case nil:
		return validationf("attribute value is nil")
	case *types.AttributeValueMemberN:
		_, err := parseNumber(v.Value)
		return err
	case *types.AttributeValueMemberSS, *types.AttributeValueMemberNS, *types.AttributeValueMemberBS:
		elems := setElements(av)
		if len(elems) == 0 {
			return validationf("an %s may not be empty", typeName(av))
		}
		for i, e := range elems {
			if containsElement(elems[:i], e) {
				return validationf("input collection %s contains duplicates", typeName(av))
			}
		}
		if _, ok := av.(*types.AttributeValueMemberNS); ok {
			for _, e := range elems {
				if err := validateValue(e); err != nil {
					return err
				}
			}
		}
	case *types.AttributeValueMemberL:
		for _, e := range v.Value {
			if err := validateValue(e); err != nil {
				return err
			}
		}
	case *types.AttributeValueMemberM:
		for _, e := range v.Value {
			if err := validateValue(e); err != nil {
				return err
			}
		}
	}
	return nil
}
