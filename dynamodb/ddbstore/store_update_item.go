package ddbstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// UpdateItem updates an existing item or creates a new one.
func (s *Store) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if params == nil {
		return nil, fmt.Errorf("params is required")
	}
	if params.Key == nil {
		return nil, validationf("key is required")
	}
	if params.UpdateExpression == nil {
		return nil, validationf("UpdateExpression is required")
	}
	if _, err := returnAttributes(params.ReturnValues, nil, nil, nil); err != nil {
		return nil, err
	}

	u, err := s.prepareUpdate(params.TableName, params.Key, params.UpdateExpression, params.ConditionExpression,
		params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	var oldItem, newItem map[string]types.AttributeValue
	err = s.db.Update(func(txn *badger.Txn) error {
		oldItem, newItem, err = u.run(txn, params.ReturnValuesOnConditionCheckFailure)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("updated item",
		zap.Stringp("table", params.TableName),
		zap.Stringp("updateExpression", params.UpdateExpression),
		zap.Bool("created", oldItem == nil))

	attrs, err := returnAttributes(params.ReturnValues, oldItem, newItem, u.expr.updatedAttributes())
	if err != nil {
		return nil, err
	}
	return &dynamodb.UpdateItemOutput{Attributes: attrs}, nil
}

// preparedUpdate is an update request that passed validation and only needs
// the current item to be applied.
type preparedUpdate struct {
	tabl   *tableSchema
	key    []byte
	ddbKey map[string]types.AttributeValue
	expr   *updateExpression
	cond   condition
}

func (s *Store) prepareUpdate(
	tableName *string,
	ddbKey map[string]types.AttributeValue,
	updateExpr, conditionExpr *string,
	names map[string]string,
	values map[string]types.AttributeValue,
) (*preparedUpdate, error) {
	tabl, key, err := s.itemKey(tableName, ddbKey)
	if err != nil {
		return nil, err
	}
	if err := checkKeyOnly(tabl.definition.KeyDefinitions, ddbKey); err != nil {
		return nil, err
	}
	expr, cond, err := parseWriteExpressions(updateExpr, conditionExpr, names, values)
	if err != nil {
		return nil, err
	}
	for _, attr := range expr.updatedAttributes() {
		if tabl.definition.KeyDefinitions.IsKeyAttribute(attr) {
			return nil, validationf("cannot update attribute %s. This attribute is part of the key", attr)
		}
	}
	return &preparedUpdate{tabl: tabl, key: key, ddbKey: ddbKey, expr: expr, cond: cond}, nil
}

// run applies the update inside txn and returns the item before and after.
// oldItem is nil when the update created the item.
func (u *preparedUpdate) run(txn *badger.Txn, rv types.ReturnValuesOnConditionCheckFailure) (oldItem, newItem map[string]types.AttributeValue, err error) {
	oldItem, err = readItem(txn, u.key)
	if err != nil {
		return nil, nil, err
	}
	if err := checkCondition(u.cond, oldItem); err != nil {
		return nil, nil, withOldItem(err, rv, oldItem)
	}

	base := oldItem
	if base == nil {
		base = copyItem(u.ddbKey)
	}
	newItem, err = u.expr.apply(base)
	if err != nil {
		return nil, nil, err
	}
	if err := writeItem(txn, u.key, newItem); err != nil {
		return nil, nil, err
	}
	return oldItem, newItem, nil
}

func returnAttributes(rv types.ReturnValue, oldItem, newItem map[string]types.AttributeValue, updated []string) (map[string]types.AttributeValue, error) {
	switch rv {
	case "", types.ReturnValueNone:
		return nil, nil
	case types.ReturnValueAllOld:
		return oldItem, nil
	case types.ReturnValueAllNew:
		return newItem, nil
	case types.ReturnValueUpdatedOld:
		return pick(oldItem, updated), nil
	case types.ReturnValueUpdatedNew:
		return pick(newItem, updated), nil
	default:
		return nil, validationf("unknown ReturnValues %q", rv)
	}
}

func pick(item map[string]types.AttributeValue, attrs []string) map[string]types.AttributeValue {
	var out map[string]types.AttributeValue
	for _, a := range attrs {
		if v, ok := item[a]; ok {
			if out == nil {
				out = make(map[string]types.AttributeValue)
			}
			out[a] = v
		}
	}
	return out
}
