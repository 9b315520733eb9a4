package ddbsdk

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"time"

	"github.com/acksell/ddbupdate/dynamodb/table"
	"github.com/acksell/ddbupdate/dynamodb/updateexpr"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrNonIdempotent is returned by Build when an update contains actions that
// change the item every time they are applied and WithAccidentalIdempotency
// was not called.
var ErrNonIdempotent = errors.New("non-idempotent update not allowed")

// Update is a single UpdateItem request assembled from updateexpr actions.
// Conflicting actions are reported by Build, not silently overwritten.
//
// Races with concurrent writers are only prevented by optimistic locking
// (WithCondition).
type Update struct {
	Table table.TableDefinition
	Key   table.PrimaryKey

	actions            []updateexpr.Action
	ttlExpiry          *time.Time
	allowNonIdempotent bool
	returnValues       types.ReturnValue

	c            expression.ConditionBuilder
	hasCondition bool
}

func NewUpdate(table table.TableDefinition, pk table.PrimaryKey) *Update {
	return &Update{
		Table: table,
		Key:   pk,
	}
}

func (u *Update) TableName() *string {
	return &u.Table.Name
}

func (u *Update) PrimaryKey() table.PrimaryKey {
	return u.Key
}

// AddActions appends actions to the update. Conflicts between them, or with
// actions added earlier, surface when the update is built.
func (u *Update) AddActions(actions ...updateexpr.Action) *Update {
	u.actions = append(u.actions, actions...)
	return u
}

// RefreshTTL sets the table's TimeToLiveKey attribute to expiry.
func (u *Update) RefreshTTL(expiry time.Time) *Update {
	u.ttlExpiry = &expiry
	return u
}

// WithCondition adds a condition the item must satisfy for the update to apply.
// Multiple conditions are combined with AND.
func (u *Update) WithCondition(c expression.ConditionBuilder) *Update {
	if u.hasCondition {
		u.c = u.c.And(c)
	} else {
		u.c = c
		u.hasCondition = true
	}
	return u
}

// WithAccidentalIdempotency lets Build accept actions whose effect repeats on every
// application: updateexpr.Add, updateexpr.AddNumber, updateexpr.AppendToList and
// NewAction fragments using ADD or list_append. A retried request applies them again.
//
// A transaction's ClientRequestToken deduplicates retries for ten minutes only, so
// a caller replaying an event later gets a second increment or append. Storing
// unique elements in a set usually avoids the need for this option.
func (u *Update) WithAccidentalIdempotency() *Update {
	u.allowNonIdempotent = true
	return u
}

// WithReturnValues selects which item attributes UpdateItem returns.
func (u *Update) WithReturnValues(rv types.ReturnValue) *Update {
	u.returnValues = rv
	return u
}

// Request is a fully built update, ready to be turned into an API input.
type Request struct {
	TableName           *string
	Key                 map[string]types.AttributeValue
	UpdateExpression    *string
	ConditionExpression *string
	Names               map[string]string
	Values              map[string]types.AttributeValue
	ReturnValues        types.ReturnValue
}

func (u *Update) Build() (Request, error) {
	key, err := u.Key.DDB()
	if err != nil {
		return Request{}, fmt.Errorf("primary key: %w", err)
	}

	actions := u.actions
	if u.ttlExpiry != nil {
		if u.Table.TimeToLiveKey == "" {
			return Request{}, &updateexpr.ValidationError{Field: "ttl", Reason: "table " + u.Table.Name + " has no TimeToLiveKey"}
		}
		ttl, err := updateexpr.Set(u.Table.TimeToLiveKey, ttlDDB(*u.ttlExpiry))
		if err != nil {
			return Request{}, err
		}
		actions = append(actions[:len(actions):len(actions)], ttl)
	}

	for i, a := range actions {
		if u.Table.KeyDefinitions.IsKeyAttribute(a.Target()) {
			return Request{}, &updateexpr.ValidationError{
				Field:  fmt.Sprintf("actions[%d]", i),
				Reason: fmt.Sprintf("attribute %q is part of the primary key and cannot be updated", a.Target()),
			}
		}
		if !u.allowNonIdempotent && !a.Idempotent() {
			return Request{}, fmt.Errorf("%w: %s %q", ErrNonIdempotent, a.Clause(), a.Target())
		}
	}

	expr, err := updateexpr.Merge(actions...)
	if err != nil {
		return Request{}, fmt.Errorf("merge actions: %w", err)
	}

	req := Request{
		TableName:        u.TableName(),
		Key:              key,
		UpdateExpression: expr.Update(),
		Names:            expr.Names(),
		Values:           expr.Values(),
		ReturnValues:     u.returnValues,
	}
	if !u.hasCondition {
		return req, nil
	}

	cond, err := expression.NewBuilder().WithCondition(u.c).Build()
	if err != nil {
		return Request{}, fmt.Errorf("build condition: %w", err)
	}
	req.ConditionExpression = cond.Condition()
	if req.Names, err = mergePlaceholders(req.Names, cond.Names(), func(a, b string) bool { return a == b }); err != nil {
		return Request{}, err
	}
	if req.Values, err = mergePlaceholders(req.Values, cond.Values(), func(a, b types.AttributeValue) bool {
		return reflect.DeepEqual(a, b)
	}); err != nil {
		return Request{}, err
	}
	return req, nil
}

// mergePlaceholders unions the update's and the condition's placeholder maps.
// A placeholder bound to two different targets makes the request ambiguous.
func mergePlaceholders[V any](update, cond map[string]V, equal func(a, b V) bool) (map[string]V, error) {
	if len(cond) == 0 {
		return update, nil
	}
	out := maps.Clone(update)
	if out == nil {
		out = make(map[string]V, len(cond))
	}
	for k, v := range cond {
		if existing, ok := out[k]; ok && !equal(existing, v) {
			return nil, &updateexpr.ConflictError{
				Placeholder: k,
				Reason:      "placeholder is used by both the update and the condition with different bindings",
			}
		}
		out[k] = v
	}
	return out, nil
}

func (u *Update) ToUpdateItem() (*dynamodbv2.UpdateItemInput, error) {
	r, err := u.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build update: %w", err)
	}
	return &dynamodbv2.UpdateItemInput{
		TableName:                 r.TableName,
		Key:                       r.Key,
		UpdateExpression:          r.UpdateExpression,
		ConditionExpression:       r.ConditionExpression,
		ExpressionAttributeNames:  r.Names,
		ExpressionAttributeValues: r.Values,
		ReturnValues:              r.ReturnValues,
	}, nil
}

// ToTransactWriteItem builds the update as a transaction entry. ReturnValues
// does not apply inside transactions and is dropped.
func (u *Update) ToTransactWriteItem() (types.TransactWriteItem, error) {
	r, err := u.Build()
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("failed to build update: %w", err)
	}
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 r.TableName,
			Key:                       r.Key,
			UpdateExpression:          r.UpdateExpression,
			ConditionExpression:       r.ConditionExpression,
			ExpressionAttributeNames:  r.Names,
			ExpressionAttributeValues: r.Values,
		},
	}, nil
}
