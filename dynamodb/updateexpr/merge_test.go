package updateexpr

import (
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAction(t *testing.T) func(Action, error) Action {
	return func(a Action, err error) Action {
		t.Helper()
		require.NoError(t, err)
		return a
	}
}

func TestMerge_SingleRemove(t *testing.T) {
	must := mustAction(t)
	expr, err := Merge(must(Remove("status")))
	require.NoError(t, err)

	assert.Equal(t, "REMOVE #status", expr.String())
	assert.Equal(t, map[string]string{"#status": "status"}, expr.Names())
	assert.Nil(t, expr.Values())
}

func TestMerge_RemoveListElement(t *testing.T) {
	must := mustAction(t)
	expr, err := Merge(must(RemoveListElement("tags", 2)))
	require.NoError(t, err)

	assert.Equal(t, "REMOVE #tags[2]", expr.String())
	assert.Equal(t, map[string]string{"#tags": "tags"}, expr.Names())
}

func TestMerge_ClauseOrder(t *testing.T) {
	must := mustAction(t)
	set := must(Set("count", 5))
	rm := must(Remove("archived"))

	for name, input := range map[string][]Action{
		"set first":    {set, rm},
		"remove first": {rm, set},
	} {
		t.Run(name, func(t *testing.T) {
			expr, err := Merge(input...)
			require.NoError(t, err)
			assert.Equal(t, "SET #count = :count REMOVE #archived", expr.String())
			assert.Equal(t, map[string]string{"#count": "count", "#archived": "archived"}, expr.Names())
			assert.Equal(t, map[string]types.AttributeValue{
				":count": &types.AttributeValueMemberN{Value: "5"},
			}, expr.Values())
		})
	}
}

func TestMerge_AllClauses(t *testing.T) {
	must := mustAction(t)
	expr, err := Merge(
		must(DeleteFromSet("labels", StringSet("old"))),
		must(Add("visits", 1)),
		must(RemoveListElement("tags", 0)),
		must(Set("name", "Alice")),
		must(Remove("archived")),
		must(Set("status", "active")),
		must(Add("roles", StringSet("admin"))),
	)
	require.NoError(t, err)

	assert.Equal(t,
		"SET #name = :name, #status = :status REMOVE #tags[0], #archived ADD #visits :visits, #roles :roles DELETE #labels :labels",
		expr.String())
	assert.Len(t, expr.Names(), 7)
	assert.Len(t, expr.Values(), 5)
	assert.Len(t, expr.Actions(), 7)
}

func TestMerge_CoalescesIdenticalActions(t *testing.T) {
	must := mustAction(t)
	expr, err := Merge(must(Remove("status")), must(Remove("status")))
	require.NoError(t, err)
	assert.Equal(t, "REMOVE #status", expr.String())
	assert.Equal(t, map[string]string{"#status": "status"}, expr.Names())
	assert.Len(t, expr.Actions(), 1)

	expr, err = Merge(must(Set("status", "A")), must(Set("status", "A")))
	require.NoError(t, err)
	assert.Equal(t, "SET #status = :status", expr.String())
}

func TestMerge_DistinctListElements(t *testing.T) {
	must := mustAction(t)
	expr, err := Merge(must(RemoveListElement("tags", 1)), must(RemoveListElement("tags", 3)))
	require.NoError(t, err)
	assert.Equal(t, "REMOVE #tags[1], #tags[3]", expr.String())
	assert.Equal(t, map[string]string{"#tags": "tags"}, expr.Names())
}

func TestMerge_Conflicts(t *testing.T) {
	must := mustAction(t)
	tests := []struct {
		name    string
		actions []Action
		attr    string
	}{
		{"set and remove", []Action{must(Set("status", "A")), must(Remove("status"))}, "status"},
		{"remove and set", []Action{must(Remove("status")), must(Set("status", "A"))}, "status"},
		{"set twice with different values", []Action{must(Set("status", "A")), must(Set("status", "B"))}, "status"},
		{"add and delete", []Action{must(Add("labels", StringSet("a"))), must(DeleteFromSet("labels", StringSet("b")))}, "labels"},
		{"set and add", []Action{must(Set("count", 1)), must(Add("count", 1))}, "count"},
		{"remove whole and element", []Action{must(Remove("tags")), must(RemoveListElement("tags", 1))}, "tags"},
		{"append and remove element", []Action{must(AppendToList("tags", []string{"x"})), must(RemoveListElement("tags", 0))}, "tags"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(tt.actions...)
			require.ErrorIs(t, err, ErrConflict)

			var cerr *ConflictError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.attr, cerr.Attribute)
			assert.Contains(t, err.Error(), `"`+tt.attr+`"`)
			assert.Len(t, cerr.Clauses, 2)
		})
	}
}

func TestMerge_PlaceholderCollision(t *testing.T) {
	a, err := NewAction(ClauseRemove, "#x", map[string]string{"#x": "alpha"}, nil, "alpha")
	require.NoError(t, err)
	b, err := NewAction(ClauseRemove, "#x", map[string]string{"#x": "beta"}, nil, "beta")
	require.NoError(t, err)

	_, err = Merge(a, b)
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "#x", cerr.Placeholder)
	assert.Empty(t, cerr.Attribute)
}

func TestMerge_AttributeUnderTwoPlaceholders(t *testing.T) {
	must := mustAction(t)
	copyStatus, err := NewAction(ClauseSet, "#a = #s", map[string]string{"#a": "a", "#s": "status"}, nil, "a")
	require.NoError(t, err)

	tests := []struct {
		name  string
		other Action
	}{
		{"remove", must(Remove("status"))},
		{"set", must(Set("status", "active"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, actions := range [][]Action{{copyStatus, tt.other}, {tt.other, copyStatus}} {
				_, err := Merge(actions...)
				var cerr *ConflictError
				require.ErrorAs(t, err, &cerr)
				assert.Equal(t, "status", cerr.Attribute)
				assert.ErrorIs(t, err, ErrConflict)
			}
		})
	}

	// The same placeholder for the same attribute is shared, not a conflict.
	expr, err := Merge(copyStatus, must(Set("b", "x")))
	require.NoError(t, err)
	assert.Equal(t, "SET #a = #s, #b = :b", expr.String())
}

func TestMerge_ValuePlaceholderCollision(t *testing.T) {
	a, err := NewAction(ClauseSet, "#a = :v", map[string]string{"#a": "a"},
		map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: "1"}}, "a")
	require.NoError(t, err)
	b, err := NewAction(ClauseSet, "#b = :v", map[string]string{"#b": "b"},
		map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: "2"}}, "b")
	require.NoError(t, err)

	_, err = Merge(a, b)
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ":v", cerr.Placeholder)

	// Sharing a placeholder with the same value is fine.
	c, err := NewAction(ClauseSet, "#c = :v", map[string]string{"#c": "c"},
		map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: "1"}}, "c")
	require.NoError(t, err)
	expr, err := Merge(a, c)
	require.NoError(t, err)
	assert.Equal(t, "SET #a = :v, #c = :v", expr.String())
	assert.Len(t, expr.Values(), 1)
}

func TestMerge_Empty(t *testing.T) {
	_, err := Merge()
	require.ErrorIs(t, err, ErrValidation)

	_, err = Merge([]Action{}...)
	require.ErrorIs(t, err, ErrValidation)
}

func TestMerge_ZeroAction(t *testing.T) {
	must := mustAction(t)
	_, err := Merge(must(Remove("a")), Action{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "actions[1]", verr.Field)
}

func TestExpression_ResultIsDetached(t *testing.T) {
	must := mustAction(t)
	expr, err := Merge(must(Set("a", 1)))
	require.NoError(t, err)

	expr.Names()["#a"] = "changed"
	delete(expr.Values(), ":a")

	update, names, values := expr.Triple()
	assert.Equal(t, "SET #a = :a", update)
	assert.Equal(t, "a", names["#a"])
	assert.Contains(t, values, ":a")
	require.NotNil(t, expr.Update())
	assert.Equal(t, "SET #a = :a", *expr.Update())

	assert.Nil(t, Expression{}.Update())
}

func TestMerge_Concurrent(t *testing.T) {
	must := mustAction(t)
	actions := []Action{must(Set("a", 1)), must(Remove("b")), must(Add("c", 2))}

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			expr, err := Merge(actions...)
			if err == nil {
				results[i] = expr.String()
			}
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, "SET #a = :a REMOVE #b ADD #c :c", r)
	}
}
