package ddbsdk

import (
	"fmt"

	"github.com/acksell/ddbupdate/dynamodb/ddbstore"
	"github.com/acksell/ddbupdate/dynamodb/table"
	"go.uber.org/zap"
)

type Client struct {
	awsddb AWSDynamoClientV2
	log    *zap.Logger
}

type ClientOption func(*Client)

// WithLogger makes the client log every request it sends at debug level.
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func New(awsddb AWSDynamoClientV2, opts ...ClientOption) *Client {
	c := &Client{
		awsddb: awsddb,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewLocalClient creates a client backed by a badger store instead of DynamoDB.
// The returned store must be closed by the caller.
func NewLocalClient(opts ddbstore.StoreOptions, defs ...table.TableDefinition) (*Client, *ddbstore.Store, error) {
	store, err := ddbstore.New(opts, defs...)
	if err != nil {
		return nil, nil, fmt.Errorf("create local store: %w", err)
	}
	return New(store, WithLogger(opts.Logger)), store, nil
}

// NewTx creates a new transaction. Add actions and commit the transaction.
func (c *Client) NewTx(opts ...TxOption) Txer {
	return newTxer(c.awsddb, c.log, opts...)
}
