package table

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type PrimaryKeyDefinition struct {
	PartitionKey KeyDef
	SortKey      KeyDef // empty Name means the table has no sort key
}

type KeyDef struct {
	Name string
	Kind KeyKind
}

type KeyKind string

const (
	KeyKindS KeyKind = "S"
	KeyKindN KeyKind = "N"
	KeyKindB KeyKind = "B"
)

func (k KeyKind) Valid() bool {
	switch k {
	case KeyKindS, KeyKindN, KeyKindB:
		return true
	default:
		return false
	}
}

// Values are marshalled with attributevalue, so strings, numbers and []byte all work
// as long as they match the KeyKind of the definition.
type PrimaryKeyValues struct {
	PartitionKey any
	SortKey      any
}

type PrimaryKey struct {
	Definition PrimaryKeyDefinition
	Values     PrimaryKeyValues
}

// DDB returns the key in the form UpdateItem and friends expect.
func (k PrimaryKey) DDB() (map[string]types.AttributeValue, error) {
	pk, err := marshalKey(k.Definition.PartitionKey, k.Values.PartitionKey)
	if err != nil {
		return nil, fmt.Errorf("partition key: %w", err)
	}
	if k.Definition.SortKey.Name == "" {
		return map[string]types.AttributeValue{
			k.Definition.PartitionKey.Name: pk,
		}, nil
	}
	sk, err := marshalKey(k.Definition.SortKey, k.Values.SortKey)
	if err != nil {
		return nil, fmt.Errorf("sort key: %w", err)
	}
	return map[string]types.AttributeValue{
		k.Definition.PartitionKey.Name: pk,
		k.Definition.SortKey.Name:      sk,
	}, nil
}

// ID is a stable string identity of the key values, usable as a map key
// (PrimaryKey itself is not comparable when values are []byte).
// Values that encode to the same DynamoDB key share an ID.
func (k PrimaryKey) ID() string {
	var b strings.Builder
	writeKeyID(&b, k.Values.PartitionKey)
	if k.Definition.SortKey.Name != "" {
		b.WriteByte('|')
		writeKeyID(&b, k.Values.SortKey)
	}
	return b.String()
}

func writeKeyID(b *strings.Builder, v any) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		fmt.Fprintf(b, "?:%v", v)
		return
	}
	switch av := av.(type) {
	case *types.AttributeValueMemberS:
		b.WriteString("S:" + av.Value)
	case *types.AttributeValueMemberN:
		b.WriteString("N:" + av.Value)
	case *types.AttributeValueMemberB:
		b.WriteString("B:" + base64.StdEncoding.EncodeToString(av.Value))
	default:
		fmt.Fprintf(b, "?:%v", v)
	}
}

func marshalKey(def KeyDef, v any) (types.AttributeValue, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("key definition has no attribute name")
	}
	if v == nil {
		return nil, fmt.Errorf("%q is required but got nil", def.Name)
	}
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %q of type %T: %w", def.Name, v, err)
	}
	if err := attributeMatchesDefinition(def.Kind, av); err != nil {
		return nil, fmt.Errorf("%q kind does not match dynamo value: %w", def.Name, err)
	}
	return av, nil
}

func attributeMatchesDefinition(want KeyKind, v types.AttributeValue) error {
	var got KeyKind
	switch v.(type) {
	case *types.AttributeValueMemberS:
		got = KeyKindS
	case *types.AttributeValueMemberN:
		got = KeyKindN
	case *types.AttributeValueMemberB:
		got = KeyKindB
	default:
		return fmt.Errorf("unexpected key attribute type %T", v)
	}
	if got != want {
		return fmt.Errorf("got KeyKind %q want %q", got, want)
	}
	return nil
}
