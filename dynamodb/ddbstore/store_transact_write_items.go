package ddbstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const maxTransactItems = 100

// transactWrite is one validated entry of a TransactWriteItems request.
type transactWrite struct {
	key         []byte
	apply       func(txn *badger.Txn) error
	// fingerprint identifies the entry for ClientRequestToken idempotency.
	fingerprint string
}

// TransactWriteItems performs multiple write operations atomically: either all
// of them are applied or none is.
func (s *Store) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if params == nil {
		return nil, fmt.Errorf("params is required")
	}
	if len(params.TransactItems) == 0 {
		return nil, validationf("TransactItems must not be empty")
	}
	if len(params.TransactItems) > maxTransactItems {
		return nil, validationf("member must have length less than or equal to %d", maxTransactItems)
	}

	writes := make([]transactWrite, len(params.TransactItems))
	seen := map[string]int{}
	for i, item := range params.TransactItems {
		w, err := s.prepareTransactWrite(item)
		if err != nil {
			return nil, fmt.Errorf("transact item %d: %w", i, err)
		}
		if j, dup := seen[string(w.key)]; dup {
			return nil, validationf("transaction request cannot include multiple operations on one item (items %d and %d)", j, i)
		}
		seen[string(w.key)] = i
		writes[i] = w
	}

	fingerprint := transactFingerprint(writes)
	if token := aws.ToString(params.ClientRequestToken); token != "" {
		done, err := s.checkRequestToken(token, fingerprint)
		if err != nil {
			return nil, err
		}
		if done {
			return &dynamodb.TransactWriteItemsOutput{}, nil
		}
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		reasons := make([]types.CancellationReason, len(writes))
		failed := false
		for i, w := range writes {
			reasons[i] = types.CancellationReason{Code: aws.String("None")}
			err := w.apply(txn)
			var ccf *types.ConditionalCheckFailedException
			switch {
			case errors.As(err, &ccf):
				failed = true
				reasons[i] = types.CancellationReason{
					Code:    aws.String("ConditionalCheckFailed"),
					Message: ccf.Message,
					Item:    ccf.Item,
				}
			case err != nil:
				return fmt.Errorf("transact item %d: %w", i, err)
			}
		}
		if failed {
			codes := make([]string, len(reasons))
			for i, r := range reasons {
				codes[i] = aws.ToString(r.Code)
			}
			return &types.TransactionCanceledException{
				Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons [" + strings.Join(codes, ", ") + "]"),
				CancellationReasons: reasons,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if token := aws.ToString(params.ClientRequestToken); token != "" {
		s.rememberRequestToken(token, fingerprint)
	}
	s.log.Debug("committed transaction", zap.Int("items", len(writes)))
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (s *Store) prepareTransactWrite(item types.TransactWriteItem) (transactWrite, error) {
	switch {
	case item.Update != nil:
		upd := item.Update
		u, err := s.prepareUpdate(upd.TableName, upd.Key, upd.UpdateExpression, upd.ConditionExpression,
			upd.ExpressionAttributeNames, upd.ExpressionAttributeValues)
		if err != nil {
			return transactWrite{}, err
		}
		return transactWrite{
			key: u.key,
			apply: func(txn *badger.Txn) error {
				_, _, err := u.run(txn, upd.ReturnValuesOnConditionCheckFailure)
				return err
			},
			fingerprint: "update " + string(u.key) + " " + aws.ToString(upd.UpdateExpression) + " " + aws.ToString(upd.ConditionExpression),
		}, nil

	case item.Put != nil:
		put := item.Put
		_, key, err := s.itemKey(put.TableName, put.Item)
		if err != nil {
			return transactWrite{}, err
		}
		for k, v := range put.Item {
			if err := validateValue(v); err != nil {
				return transactWrite{}, fmt.Errorf("item attribute %s: %w", k, err)
			}
		}
		_, cond, err := parseWriteExpressions(nil, put.ConditionExpression, put.ExpressionAttributeNames, put.ExpressionAttributeValues)
		if err != nil {
			return transactWrite{}, err
		}
		return transactWrite{
			key: key,
			apply: func(txn *badger.Txn) error {
				old, err := readItem(txn, key)
				if err != nil {
					return err
				}
				if err := checkCondition(cond, old); err != nil {
					return withOldItem(err, put.ReturnValuesOnConditionCheckFailure, old)
				}
				return writeItem(txn, key, put.Item)
			},
			fingerprint: "put " + string(key) + " " + aws.ToString(put.ConditionExpression),
		}, nil

	case item.Delete != nil:
		del := item.Delete
		tabl, key, err := s.itemKey(del.TableName, del.Key)
		if err != nil {
			return transactWrite{}, err
		}
		if err := checkKeyOnly(tabl.definition.KeyDefinitions, del.Key); err != nil {
			return transactWrite{}, err
		}
		_, cond, err := parseWriteExpressions(nil, del.ConditionExpression, del.ExpressionAttributeNames, del.ExpressionAttributeValues)
		if err != nil {
			return transactWrite{}, err
		}
		return transactWrite{
			key: key,
			apply: func(txn *badger.Txn) error {
				old, err := readItem(txn, key)
				if err != nil {
					return err
				}
				if err := checkCondition(cond, old); err != nil {
					return withOldItem(err, del.ReturnValuesOnConditionCheckFailure, old)
				}
				if old == nil {
					return nil
				}
				return txn.Delete(key)
			},
			fingerprint: "delete " + string(key) + " " + aws.ToString(del.ConditionExpression),
		}, nil

	case item.ConditionCheck != nil:
		check := item.ConditionCheck
		tabl, key, err := s.itemKey(check.TableName, check.Key)
		if err != nil {
			return transactWrite{}, err
		}
		if err := checkKeyOnly(tabl.definition.KeyDefinitions, check.Key); err != nil {
			return transactWrite{}, err
		}
		if check.ConditionExpression == nil {
			return transactWrite{}, validationf("ConditionCheck requires a ConditionExpression")
		}
		_, cond, err := parseWriteExpressions(nil, check.ConditionExpression, check.ExpressionAttributeNames, check.ExpressionAttributeValues)
		if err != nil {
			return transactWrite{}, err
		}
		return transactWrite{
			key: key,
			apply: func(txn *badger.Txn) error {
				old, err := readItem(txn, key)
				if err != nil {
					return err
				}
				return withOldItem(checkCondition(cond, old), check.ReturnValuesOnConditionCheckFailure, old)
			},
			fingerprint: "check " + string(key) + " " + aws.ToString(check.ConditionExpression),
		}, nil

	default:
		return transactWrite{}, validationf("transact item must set exactly one of Update, Put, Delete or ConditionCheck")
	}
}

func transactFingerprint(writes []transactWrite) string {
	parts := make([]string, len(writes))
	for i, w := range writes {
		parts[i] = w.fingerprint
	}
	return strings.Join(parts, "\x00")
}

// checkRequestToken reports whether a transaction with this token already
// committed. Reusing a token for a different request is an error.
func (s *Store) checkRequestToken(token, fingerprint string) (bool, error) {
	s.tokensMu.Lock()
	defer s.tokensMu.Unlock()
	prev, ok := s.tokens[token]
	if !ok {
		return false, nil
	}
	if prev != fingerprint {
		return false, &types.IdempotentParameterMismatchException{
			Message: aws.String("the request uses the same client token as a previous, but non-identical request"),
		}
	}
	s.log.Debug("transaction already committed", zap.String("clientRequestToken", token))
	return true, nil
}

func (s *Store) rememberRequestToken(token, fingerprint string) {
	s.tokensMu.Lock()
	defer s.tokensMu.Unlock()
	s.tokens[token] = fingerprint
}
