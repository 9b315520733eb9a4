package ddbstore

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondition_Holds(t *testing.T) {
	item := doc{
		"name":    s("Alice"),
		"version": n("3"),
		"m":       &types.AttributeValueMemberM{Value: doc{"x": n("1")}},
	}
	tests := []struct {
		expr   string
		names  map[string]string
		values doc
		want   bool
	}{
		{"attribute_exists(#n)", map[string]string{"#n": "name"}, nil, true},
		{"attribute_not_exists(#n)", map[string]string{"#n": "name"}, nil, false},
		{"attribute_not_exists(missing)", nil, nil, true},
		{"attribute_exists(m.x)", nil, nil, true},
		{"#v = :v", map[string]string{"#v": "version"}, doc{":v": n("3.0")}, true},
		{"#v <> :v", map[string]string{"#v": "version"}, doc{":v": n("3")}, false},
		{"#v > :v", map[string]string{"#v": "version"}, doc{":v": n("2")}, true},
		{"#v <= :v", map[string]string{"#v": "version"}, doc{":v": n("2")}, false},
		{"missing = :v", nil, doc{":v": n("1")}, false},
		{"missing <> :v", nil, doc{":v": n("1")}, true},
		{"begins_with(#n, :p)", map[string]string{"#n": "name"}, doc{":p": s("Al")}, true},
		{"NOT attribute_exists(#n)", map[string]string{"#n": "name"}, nil, false},
		{"attribute_exists(missing) OR #n = :n", map[string]string{"#n": "name"}, doc{":n": s("Alice")}, true},
		{"(attribute_exists (#n)) AND (#v = :v)", map[string]string{"#n": "name", "#v": "version"}, doc{":v": n("4")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, cond, err := parseWriteExpressions(nil, &tt.expr, tt.names, tt.values)
			require.NoError(t, err)
			got, err := cond.holds(item)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCondition_ConditionBuilderOutput(t *testing.T) {
	cond := expression.AttributeExists(expression.Name("version")).
		And(expression.Name("version").Equal(expression.Value(3)))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	require.NoError(t, err)

	_, parsed, err := parseWriteExpressions(nil, expr.Condition(), expr.Names(), expr.Values())
	require.NoError(t, err)

	ok, err := parsed.holds(doc{"version": n("3")})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = parsed.holds(doc{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCondition_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"unknown function", "size(#a) > :v"},
		{"missing operator", "#a :v"},
		{"unbalanced parenthesis", "(attribute_exists(#a)"},
		{"trailing tokens", "attribute_exists(#a) #a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseWriteExpressions(nil, &tt.expr, map[string]string{"#a": "a"}, doc{":v": n("1")})
			require.True(t, IsValidationError(err), "got %v", err)
		})
	}
}
