package ddbstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// PutItem creates or replaces an item.
func (s *Store) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if params == nil {
		return nil, fmt.Errorf("params is required")
	}
	if params.Item == nil {
		return nil, validationf("item is required")
	}
	switch params.ReturnValues {
	case "", types.ReturnValueNone, types.ReturnValueAllOld:
	default:
		return nil, validationf("ReturnValues can only be ALL_OLD or NONE for PutItem")
	}

	_, key, err := s.itemKey(params.TableName, params.Item)
	if err != nil {
		return nil, err
	}
	for k, v := range params.Item {
		if err := validateValue(v); err != nil {
			return nil, fmt.Errorf("item attribute %s: %w", k, err)
		}
	}
	_, cond, err := parseWriteExpressions(nil, params.ConditionExpression,
		params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	var oldItem map[string]types.AttributeValue
	err = s.db.Update(func(txn *badger.Txn) error {
		oldItem, err = readItem(txn, key)
		if err != nil {
			return err
		}
		if err := checkCondition(cond, oldItem); err != nil {
			return withOldItem(err, params.ReturnValuesOnConditionCheckFailure, oldItem)
		}
		return writeItem(txn, key, params.Item)
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("put item", zap.Stringp("table", params.TableName), zap.Bool("replaced", oldItem != nil))

	out := &dynamodb.PutItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = oldItem
	}
	return out, nil
}

// withOldItem attaches the current item to a failed condition check when asked to.
func withOldItem(err error, rv types.ReturnValuesOnConditionCheckFailure, old map[string]types.AttributeValue) error {
	ccf, ok := err.(*types.ConditionalCheckFailedException)
	if ok && rv == types.ReturnValuesOnConditionCheckFailureAllOld {
		ccf.Item = old
	}
	return err
}
