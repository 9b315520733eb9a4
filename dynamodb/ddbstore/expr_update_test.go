package ddbstore

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func n(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }
func ss(v ...string) types.AttributeValue {
	return &types.AttributeValueMemberSS{Value: v}
}
func ns(v ...string) types.AttributeValue {
	return &types.AttributeValueMemberNS{Value: v}
}
func list(v ...types.AttributeValue) types.AttributeValue {
	return &types.AttributeValueMemberL{Value: v}
}

type doc = map[string]types.AttributeValue

func applyUpdate(t *testing.T, item doc, expr string, names map[string]string, values doc) (doc, error) {
	t.Helper()
	update, _, err := parseWriteExpressions(&expr, nil, names, values)
	if err != nil {
		return nil, err
	}
	return update.apply(item)
}

func TestUpdateExpression_Apply(t *testing.T) {
	tests := []struct {
		name   string
		item   doc
		expr   string
		names  map[string]string
		values doc
		want   doc
	}{
		{
			name:   "set value",
			item:   doc{"a": s("old")},
			expr:   "SET #a = :a",
			names:  map[string]string{"#a": "a"},
			values: doc{":a": s("new")},
			want:   doc{"a": s("new")},
		},
		{
			name:  "set from other attribute",
			item:  doc{"a": s("x")},
			expr:  "SET #b = #a",
			names: map[string]string{"#a": "a", "#b": "b"},
			want:  doc{"a": s("x"), "b": s("x")},
		},
		{
			name:   "if_not_exists keeps existing",
			item:   doc{"a": s("kept")},
			expr:   "SET #a = if_not_exists(#a, :a)",
			names:  map[string]string{"#a": "a"},
			values: doc{":a": s("default")},
			want:   doc{"a": s("kept")},
		},
		{
			name:   "if_not_exists fills missing",
			item:   doc{},
			expr:   "SET #a = if_not_exists(#a, :a)",
			names:  map[string]string{"#a": "a"},
			values: doc{":a": s("default")},
			want:   doc{"a": s("default")},
		},
		{
			name:   "list_append onto missing list",
			item:   doc{},
			expr:   "SET #l = list_append(if_not_exists(#l, :l_empty), :l)",
			names:  map[string]string{"#l": "l"},
			values: doc{":l": list(s("x")), ":l_empty": list()},
			want:   doc{"l": list(s("x"))},
		},
		{
			name:   "list_append onto existing list",
			item:   doc{"l": list(s("a"))},
			expr:   "SET #l = list_append(if_not_exists(#l, :l_empty), :l)",
			names:  map[string]string{"#l": "l"},
			values: doc{":l": list(s("b")), ":l_empty": list()},
			want:   doc{"l": list(s("a"), s("b"))},
		},
		{
			name:   "arithmetic",
			item:   doc{"c": n("10")},
			expr:   "SET #c = #c - :d",
			names:  map[string]string{"#c": "c"},
			values: doc{":d": n("2.5")},
			want:   doc{"c": n("7.5")},
		},
		{
			name:  "remove attribute",
			item:  doc{"a": s("x"), "b": s("y")},
			expr:  "REMOVE #a",
			names: map[string]string{"#a": "a"},
			want:  doc{"b": s("y")},
		},
		{
			name:  "remove missing attribute is a no-op",
			item:  doc{"b": s("y")},
			expr:  "REMOVE #a",
			names: map[string]string{"#a": "a"},
			want:  doc{"b": s("y")},
		},
		{
			name:  "remove list elements by original index",
			item:  doc{"l": list(s("0"), s("1"), s("2"), s("3"))},
			expr:  "REMOVE #l[1], #l[3]",
			names: map[string]string{"#l": "l"},
			want:  doc{"l": list(s("0"), s("2"))},
		},
		{
			name:   "add to number",
			item:   doc{"c": n("1")},
			expr:   "ADD #c :c",
			names:  map[string]string{"#c": "c"},
			values: doc{":c": n("41")},
			want:   doc{"c": n("42")},
		},
		{
			name:   "add to missing number",
			item:   doc{},
			expr:   "ADD #c :c",
			names:  map[string]string{"#c": "c"},
			values: doc{":c": n("-1")},
			want:   doc{"c": n("-1")},
		},
		{
			name:   "add to set",
			item:   doc{"t": ss("a", "b")},
			expr:   "ADD #t :t",
			names:  map[string]string{"#t": "t"},
			values: doc{":t": ss("b", "c")},
			want:   doc{"t": ss("a", "b", "c")},
		},
		{
			name:   "delete from set",
			item:   doc{"t": ns("1", "2", "3")},
			expr:   "DELETE #t :t",
			names:  map[string]string{"#t": "t"},
			values: doc{":t": ns("2.0")},
			want:   doc{"t": ns("1", "3")},
		},
		{
			name:   "delete last elements removes the set",
			item:   doc{"t": ss("a")},
			expr:   "DELETE #t :t",
			names:  map[string]string{"#t": "t"},
			values: doc{":t": ss("a")},
			want:   doc{},
		},
		{
			name: "nested path",
			item: doc{"m": &types.AttributeValueMemberM{Value: doc{"x": n("1")}}},
			expr: "SET m.y = m.x",
			want: doc{"m": &types.AttributeValueMemberM{Value: doc{"x": n("1"), "y": n("1")}}},
		},
		{
			name: "all clauses together",
			item: doc{"l": list(s("a"), s("b")), "c": n("1"), "t": ss("x", "y")},
			expr: "SET #s = :s REMOVE #l[0] ADD #c :c DELETE #t :t",
			names: map[string]string{
				"#s": "s", "#l": "l", "#c": "c", "#t": "t",
			},
			values: doc{":s": s("v"), ":c": n("1"), ":t": ss("x")},
			want:   doc{"s": s("v"), "l": list(s("b")), "c": n("2"), "t": ss("y")},
		},
		{
			name:  "keywords are case insensitive",
			item:  doc{"a": s("x")},
			expr:  "remove #a",
			names: map[string]string{"#a": "a"},
			want:  doc{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := copyItem(tt.item)
			got, err := applyUpdate(t, tt.item, tt.expr, tt.names, tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, before, tt.item, "input item must not be modified")
		})
	}
}

func TestUpdateExpression_Errors(t *testing.T) {
	tests := []struct {
		name   string
		item   doc
		expr   string
		names  map[string]string
		values doc
		errMsg string
	}{
		{
			name:   "undefined name",
			expr:   "REMOVE #a",
			errMsg: "attribute name used in the document path is not defined",
		},
		{
			name:   "undefined value",
			expr:   "SET #a = :a",
			names:  map[string]string{"#a": "a"},
			errMsg: "attribute value used in expression is not defined",
		},
		{
			name:   "unused value",
			expr:   "REMOVE #a",
			names:  map[string]string{"#a": "a"},
			values: doc{":a": s("x")},
			errMsg: "unused in expressions",
		},
		{
			name:   "clause repeated",
			expr:   "REMOVE #a REMOVE #b",
			names:  map[string]string{"#a": "a", "#b": "b"},
			errMsg: "can only be used once",
		},
		{
			name:   "overlapping paths",
			expr:   "SET #a = :a REMOVE #a",
			names:  map[string]string{"#a": "a"},
			values: doc{":a": s("x")},
			errMsg: "overlap",
		},
		{
			name:   "nested overlap",
			expr:   "REMOVE #a, #a[0]",
			names:  map[string]string{"#a": "a"},
			errMsg: "overlap",
		},
		{
			name:   "add to string",
			item:   doc{"a": s("x")},
			expr:   "ADD #a :a",
			names:  map[string]string{"#a": "a"},
			values: doc{":a": n("1")},
			errMsg: "incorrect data type",
		},
		{
			name:   "add a list",
			expr:   "ADD #a :a",
			names:  map[string]string{"#a": "a"},
			values: doc{":a": list(s("x"))},
			errMsg: "incorrect operand type",
		},
		{
			name:   "delete with a number",
			expr:   "DELETE #a :a",
			names:  map[string]string{"#a": "a"},
			values: doc{":a": n("1")},
			errMsg: "incorrect operand type",
		},
		{
			name:   "arithmetic on missing attribute",
			expr:   "SET #a = #a + :a",
			names:  map[string]string{"#a": "a"},
			values: doc{":a": n("1")},
			errMsg: "does not exist",
		},
		{
			name:   "empty set value",
			expr:   "ADD #a :a",
			names:  map[string]string{"#a": "a"},
			values: doc{":a": ss()},
			errMsg: "may not be empty",
		},
		{
			name:   "unknown function",
			expr:   "SET #a = size(#a)",
			names:  map[string]string{"#a": "a"},
			errMsg: "invalid function name",
		},
		{
			name:   "dangling comma",
			expr:   "REMOVE #a,",
			names:  map[string]string{"#a": "a"},
			errMsg: "syntax error",
		},
		{
			name:   "empty expression",
			expr:   "  ",
			errMsg: "can not be empty",
		},
		{
			name:   "set on missing parent",
			expr:   "SET #m.#x = :x",
			names:  map[string]string{"#m": "m", "#x": "x"},
			values: doc{":x": s("v")},
			errMsg: "invalid for update",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := tt.item
			if item == nil {
				item = doc{}
			}
			_, err := applyUpdate(t, item, tt.expr, tt.names, tt.values)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
