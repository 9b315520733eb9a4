package ddbstore

import (
	"errors"
	"fmt"

	"github.com/acksell/ddbupdate/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// errValidation marks requests DynamoDB would reject with a ValidationException.
var errValidation = errors.New("ValidationException")

// IsValidationError reports whether err is a request DynamoDB would reject as invalid.
func IsValidationError(err error) bool {
	return errors.Is(err, errValidation)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errValidation}, args...)...)
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{
		Message: aws.String("The conditional request failed"),
	}
}

func ptrStr(s string) *string {
	return &s
}

// readItem loads the item stored under key, or nil when there is none.
func readItem(txn *badger.Txn, key []byte) (map[string]types.AttributeValue, error) {
	stored, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var item map[string]types.AttributeValue
	err = stored.Value(func(val []byte) error {
		item, err = deserializeItem(val)
		return err
	})
	return item, err
}

func writeItem(txn *badger.Txn, key []byte, item map[string]types.AttributeValue) error {
	itemBytes, err := serializeItem(item)
	if err != nil {
		return fmt.Errorf("serialize item: %w", err)
	}
	return txn.Set(key, itemBytes)
}

// itemKey resolves the table and badger key for a request key or full item.
func (s *Store) itemKey(tableName *string, doc map[string]types.AttributeValue) (*tableSchema, []byte, error) {
	tabl, err := s.getTable(tableName)
	if err != nil {
		return nil, nil, err
	}
	pk, err := tabl.definition.ExtractPrimaryKey(doc)
	if err != nil {
		return nil, nil, validationf("the provided key element does not match the schema: %v", err)
	}
	key, err := tabl.encodeKey(pk)
	if err != nil {
		return nil, nil, validationf("%v", err)
	}
	return tabl, key, nil
}

// checkKeyOnly rejects request keys that carry more than the key attributes.
func checkKeyOnly(def table.PrimaryKeyDefinition, key map[string]types.AttributeValue) error {
	want := 1
	if def.SortKey.Name != "" {
		want = 2
	}
	if len(key) != want {
		return validationf("the provided key element does not match the schema")
	}
	return nil
}
