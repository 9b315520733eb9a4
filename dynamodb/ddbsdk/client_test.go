package ddbsdk

import (
	"context"
	"testing"

	"github.com/acksell/ddbupdate/dynamodb/ddbstore"
	"github.com/acksell/ddbupdate/dynamodb/table"
	"github.com/acksell/ddbupdate/dynamodb/updateexpr"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// clientTestTable is a shared table definition used across client operation tests
var clientTestTable = table.TableDefinition{
	Name: "test-table",
	KeyDefinitions: table.PrimaryKeyDefinition{
		PartitionKey: table.KeyDef{Name: "pk", Kind: table.KeyKindS},
		SortKey:      table.KeyDef{Name: "sk", Kind: table.KeyKindS},
	},
	TimeToLiveKey: "ttl",
}

func testKey(pk, sk string) table.PrimaryKey {
	return clientTestTable.Key(pk, sk)
}

func newTestClient(t *testing.T) (*Client, *ddbstore.Store) {
	t.Helper()
	client, store, err := NewLocalClient(ddbstore.StoreOptions{InMemory: true, Logger: zaptest.NewLogger(t)}, clientTestTable)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return client, store
}

func must(t *testing.T) func(updateexpr.Action, error) updateexpr.Action {
	return func(a updateexpr.Action, err error) updateexpr.Action {
		t.Helper()
		require.NoError(t, err)
		return a
	}
}

func getItem(t *testing.T, store *ddbstore.Store, key table.PrimaryKey) map[string]types.AttributeValue {
	t.Helper()
	ddbKey, err := key.DDB()
	require.NoError(t, err)
	out, err := store.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: &clientTestTable.Name,
		Key:       ddbKey,
	})
	require.NoError(t, err)
	return out.Item
}

// recordingClient captures requests instead of sending them.
type recordingClient struct {
	updates      []*dynamodb.UpdateItemInput
	transactions []*dynamodb.TransactWriteItemsInput
}

func (r *recordingClient) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, nil
}

func (r *recordingClient) PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return &dynamodb.PutItemOutput{}, nil
}

func (r *recordingClient) UpdateItem(_ context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	r.updates = append(r.updates, params)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (r *recordingClient) TransactWriteItems(_ context.Context, params *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	r.transactions = append(r.transactions, params)
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func TestClient_UpdateItem(t *testing.T) {
	ctx := context.Background()
	must := must(t)

	t.Run("creates the item", func(t *testing.T) {
		client, store := newTestClient(t)
		u := NewUpdate(clientTestTable, testKey("user#1", "profile")).
			AddActions(
				must(updateexpr.Set("name", "Jane")),
				must(updateexpr.SetIfNotExists("createdAt", "2024-01-01")),
				must(updateexpr.Add("roles", updateexpr.StringSet("admin"))),
			)
		_, err := client.UpdateItem(ctx, u)
		require.NoError(t, err)

		item := getItem(t, store, testKey("user#1", "profile"))
		assert.Equal(t, &types.AttributeValueMemberS{Value: "Jane"}, item["name"])
		assert.Equal(t, &types.AttributeValueMemberS{Value: "2024-01-01"}, item["createdAt"])
		assert.Equal(t, &types.AttributeValueMemberSS{Value: []string{"admin"}}, item["roles"])
	})

	t.Run("update is idempotent", func(t *testing.T) {
		client, store := newTestClient(t)
		u := NewUpdate(clientTestTable, testKey("user#1", "profile")).
			AddActions(
				must(updateexpr.Set("name", "Jane")),
				must(updateexpr.Add("roles", updateexpr.StringSet("admin"))),
				must(updateexpr.DeleteFromSet("banned", updateexpr.StringSet("guest"))),
			)
		for range 2 {
			_, err := client.UpdateItem(ctx, u)
			require.NoError(t, err)
		}
		item := getItem(t, store, testKey("user#1", "profile"))
		assert.Equal(t, &types.AttributeValueMemberSS{Value: []string{"admin"}}, item["roles"])
	})

	t.Run("append and count with accidental idempotency", func(t *testing.T) {
		client, store := newTestClient(t)
		u := NewUpdate(clientTestTable, testKey("user#1", "profile")).
			AddActions(
				must(updateexpr.AppendToList("events", []string{"login"})),
				must(updateexpr.AddNumber("logins", 1)),
			).
			WithAccidentalIdempotency()
		for range 2 {
			_, err := client.UpdateItem(ctx, u)
			require.NoError(t, err)
		}
		item := getItem(t, store, testKey("user#1", "profile"))
		assert.Equal(t, &types.AttributeValueMemberN{Value: "2"}, item["logins"])
		assert.Equal(t, &types.AttributeValueMemberL{Value: []types.AttributeValue{
			&types.AttributeValueMemberS{Value: "login"},
			&types.AttributeValueMemberS{Value: "login"},
		}}, item["events"])
	})

	t.Run("remove list elements", func(t *testing.T) {
		client, store := newTestClient(t)
		_, err := client.UpdateItem(ctx, NewUpdate(clientTestTable, testKey("user#1", "profile")).
			AddActions(must(updateexpr.Set("tags", []string{"a", "b", "c"}))))
		require.NoError(t, err)

		_, err = client.UpdateItem(ctx, NewUpdate(clientTestTable, testKey("user#1", "profile")).
			AddActions(
				must(updateexpr.RemoveListElement("tags", 0)),
				must(updateexpr.RemoveListElement("tags", 2)),
			))
		require.NoError(t, err)

		item := getItem(t, store, testKey("user#1", "profile"))
		assert.Equal(t, &types.AttributeValueMemberL{Value: []types.AttributeValue{
			&types.AttributeValueMemberS{Value: "b"},
		}}, item["tags"])
	})

	t.Run("actions from item", func(t *testing.T) {
		client, store := newTestClient(t)
		type profile struct {
			Name  string  `dynamodbav:"name"`
			Email *string `dynamodbav:"email"`
		}
		actions, err := updateexpr.ActionsFromItem(profile{Name: "Jane"}, updateexpr.IgnoreNulls())
		require.NoError(t, err)

		_, err = client.UpdateItem(ctx, NewUpdate(clientTestTable, testKey("user#1", "profile")).AddActions(actions...))
		require.NoError(t, err)

		item := getItem(t, store, testKey("user#1", "profile"))
		assert.Equal(t, &types.AttributeValueMemberS{Value: "Jane"}, item["name"])
		assert.NotContains(t, item, "email")
	})

	t.Run("return values", func(t *testing.T) {
		client, _ := newTestClient(t)
		u := NewUpdate(clientTestTable, testKey("user#1", "profile")).
			AddActions(must(updateexpr.Set("name", "Jane"))).
			WithReturnValues(types.ReturnValueUpdatedNew)
		out, err := client.UpdateItem(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: "Jane"},
		}, out.Attributes)
	})

	t.Run("failed condition leaves the item untouched", func(t *testing.T) {
		client, store := newTestClient(t)
		_, err := client.UpdateItem(ctx, NewUpdate(clientTestTable, testKey("user#1", "profile")).
			AddActions(must(updateexpr.Set("version", 2))))
		require.NoError(t, err)

		_, err = client.UpdateItem(ctx, NewUpdate(clientTestTable, testKey("user#1", "profile")).
			AddActions(must(updateexpr.Set("name", "Jane"))).
			WithCondition(versionIs(1)))
		var ccf *types.ConditionalCheckFailedException
		require.ErrorAs(t, err, &ccf)
		assert.NotContains(t, getItem(t, store, testKey("user#1", "profile")), "name")
	})

	t.Run("build errors are not sent", func(t *testing.T) {
		rec := &recordingClient{}
		client := New(rec)
		_, err := client.UpdateItem(ctx, NewUpdate(clientTestTable, testKey("user#1", "profile")))
		require.ErrorIs(t, err, updateexpr.ErrValidation)
		assert.Empty(t, rec.updates)
	})
}
