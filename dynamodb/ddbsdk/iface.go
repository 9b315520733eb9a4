package ddbsdk

import (
	"context"

	"github.com/acksell/ddbupdate/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AWSDynamoClientV2 is the subset of *dynamodb.Client this package needs.
// *ddbstore.Store implements it as well.
type AWSDynamoClientV2 interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

type Writer interface {
	NewTx(...TxOption) Txer
	UpdateItem(context.Context, UpdateItemAction) (*dynamodb.UpdateItemOutput, error)
}

type Txer interface {
	AddAction(Action)
	Commit(context.Context) error
}

// Action is a write that can take part in a transaction.
type Action interface {
	TableName() *string
	PrimaryKey() table.PrimaryKey
	UpdateItemAction
	ToTransactWriteItem() (types.TransactWriteItem, error)
}

type UpdateItemAction interface {
	ToUpdateItem() (*dynamodb.UpdateItemInput, error)
}

var (
	_ Writer = &Client{}
	_ Action = &Update{}
)
