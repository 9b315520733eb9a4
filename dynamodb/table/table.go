package table

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type TableDefinition struct {
	Name           string
	KeyDefinitions PrimaryKeyDefinition
	// TimeToLiveKey is the attribute DynamoDB reads expiry timestamps from, if TTL is enabled.
	TimeToLiveKey string
}

func (t TableDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	return t.KeyDefinitions.ExtractPrimaryKey(doc)
}

// Key builds a primary key for this table. sort is ignored for tables without a sort key.
func (t TableDefinition) Key(partition, sort any) PrimaryKey {
	pk := PrimaryKey{
		Definition: t.KeyDefinitions,
		Values:     PrimaryKeyValues{PartitionKey: partition},
	}
	if t.KeyDefinitions.SortKey.Name != "" {
		pk.Values.SortKey = sort
	}
	return pk
}

func (k PrimaryKeyDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	part, ok := doc[k.PartitionKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("partition key %q not found", k.PartitionKey.Name)
	}
	if err := attributeMatchesDefinition(k.PartitionKey.Kind, part); err != nil {
		return PrimaryKey{}, fmt.Errorf("document key %q kind does not match definition: %w", k.PartitionKey.Name, err)
	}
	pk := PrimaryKey{
		Definition: k,
		Values: PrimaryKeyValues{
			PartitionKey: keyValueFromAV(part),
		},
	}
	if k.SortKey.Name == "" {
		return pk, nil
	}
	sort, ok := doc[k.SortKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("sort key %q not found on document", k.SortKey.Name)
	}
	if err := attributeMatchesDefinition(k.SortKey.Kind, sort); err != nil {
		return PrimaryKey{}, fmt.Errorf("sort key %q kind does not match definition: %w", k.SortKey.Name, err)
	}
	pk.Values.SortKey = keyValueFromAV(sort)
	return pk, nil
}

// IsKeyAttribute reports whether name is the partition or sort key attribute.
// Key attributes cannot be changed by an update.
func (k PrimaryKeyDefinition) IsKeyAttribute(name string) bool {
	return name != "" && (name == k.PartitionKey.Name || name == k.SortKey.Name)
}

// keyValueFromAV is only called after attributeMatchesDefinition succeeded.
func keyValueFromAV(av types.AttributeValue) any {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberB:
		return v.Value
	default:
		return nil
	}
}
