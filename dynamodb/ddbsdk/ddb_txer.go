package ddbsdk

import (
	"context"
	"errors"
	"fmt"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// maxTxActions is the TransactWriteItems limit.
const maxTxActions = 100

func newTxer(ddb AWSDynamoClientV2, log *zap.Logger, opts ...TxOption) Txer {
	tx := &txer{
		awsddb: ddb,
		log:    log,
		seen:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(&tx.opts)
	}
	return tx
}

type txer struct {
	awsddb AWSDynamoClientV2
	log    *zap.Logger

	opts txOpts

	// errors from AddAction are returned when calling Commit().
	// This is to enable a nicer API where you don't have to check for errors after each AddAction call.
	errs []error
	// Only one action per item is allowed in a transaction.
	seen    map[string]struct{}
	actions []Action
}

// AddAction stages the action for the commit.
// Errors are reported by Commit.
func (tx *txer) AddAction(a Action) {
	if a.TableName() == nil || *a.TableName() == "" {
		tx.errs = append(tx.errs, fmt.Errorf("missing table name for action %T on pk %s", a, a.PrimaryKey().ID()))
		return
	}
	id := *a.TableName() + "\x00" + a.PrimaryKey().ID()
	if _, found := tx.seen[id]; found {
		tx.errs = append(tx.errs, fmt.Errorf("an action already exists in table %q for primary key %s", *a.TableName(), a.PrimaryKey().ID()))
		return
	}
	tx.seen[id] = struct{}{}
	tx.actions = append(tx.actions, a)
}

// Commit sends the staged actions. A single action is sent as UpdateItem to
// avoid the transactional overhead, more are sent as one TransactWriteItems.
func (tx *txer) Commit(ctx context.Context) error {
	if len(tx.errs) > 0 {
		return fmt.Errorf("invalid transaction: %w", errors.Join(tx.errs...))
	}
	switch n := len(tx.actions); {
	case n == 0:
		return nil
	case n == 1:
		update, err := tx.actions[0].ToUpdateItem()
		if err != nil {
			return fmt.Errorf("failed to convert action to update item: %w", err)
		}
		tx.log.Debug("committing single update",
			zap.Stringp("table", update.TableName),
			zap.Stringp("updateExpression", update.UpdateExpression))
		if _, err := tx.awsddb.UpdateItem(ctx, update); err != nil {
			return fmt.Errorf("failed to update item: %w", err)
		}
		return nil
	case n > maxTxActions:
		return fmt.Errorf("transaction has %d actions, at most %d are allowed", n, maxTxActions)
	}

	txInputs := make([]types.TransactWriteItem, 0, len(tx.actions))
	for i, action := range tx.actions {
		twi, err := action.ToTransactWriteItem()
		if err != nil {
			return fmt.Errorf("failed to convert action %d to transact write item: %w", i, err)
		}
		txInputs = append(txInputs, twi)
	}
	params := &dynamodbv2.TransactWriteItemsInput{
		TransactItems: txInputs,
	}
	if tx.opts.idempotencyToken != "" {
		params.ClientRequestToken = &tx.opts.idempotencyToken
	}
	tx.log.Debug("committing transaction", zap.Int("actions", len(txInputs)))
	if _, err := tx.awsddb.TransactWriteItems(ctx, params); err != nil {
		return fmt.Errorf("failed to transact write items: %w", err)
	}
	return nil
}

type TxOption func(*txOpts)

type txOpts struct {
	idempotencyToken string
}

// IdempotencyTokens last for 10 minutes according to AWS documentation.
// If used after that, the request will be treated as new.
// Therefore, use with care.
// https://docs.aws.amazon.com/amazondynamodb/latest/APIReference/API_TransactWriteItems.html
func WithIdempotencyToken(token string) TxOption {
	return func(opts *txOpts) {
		opts.idempotencyToken = token
	}
}
