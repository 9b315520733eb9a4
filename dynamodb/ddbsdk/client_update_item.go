package ddbsdk

import (
	"context"
	"fmt"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

func (c *Client) UpdateItem(ctx context.Context, u UpdateItemAction) (*dynamodbv2.UpdateItemOutput, error) {
	update, err := u.ToUpdateItem()
	if err != nil {
		return nil, fmt.Errorf("failed to convert update to update item: %w", err)
	}
	c.log.Debug("update item",
		zap.Stringp("table", update.TableName),
		zap.Stringp("updateExpression", update.UpdateExpression),
		zap.Stringp("conditionExpression", update.ConditionExpression))
	out, err := c.awsddb.UpdateItem(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	return out, nil
}
