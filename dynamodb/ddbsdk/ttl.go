package ddbsdk

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ttlDDB encodes expiry the way DynamoDB TTL expects it: epoch seconds as a number.
func ttlDDB(expiry time.Time) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{
		Value: strconv.FormatInt(expiry.Unix(), 10),
	}
}
