package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"incident-detector/internal/model"
)

// Attribute names of the cooldown table. The partition key is pk (the
// entity id) and last_ts holds the last alert time in Unix seconds with
// millisecond precision.
const (
	dynamoKey       = "pk"
	dynamoTimestamp = "last_ts"
)

// DynamoDBAPI is the subset of the DynamoDB client used here.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoDB keeps one item per entity.
type DynamoDB struct {
	api    DynamoDBAPI
	table  string
	logger zerolog.Logger
}

// NewDynamoDBFromConfig creates a DynamoDB store from an AWS config.
func NewDynamoDBFromConfig(cfg aws.Config, table string, logger zerolog.Logger) *DynamoDB {
	return NewDynamoDB(dynamodb.NewFromConfig(cfg), table, logger)
}

// NewDynamoDB creates a DynamoDB store on table.
func NewDynamoDB(api DynamoDBAPI, table string, logger zerolog.Logger) *DynamoDB {
	return &DynamoDB{
		api:    api,
		table:  table,
		logger: logger.With().Str("component", "dynamodb-cooldown").Str("table", table).Logger(),
	}
}

// Reserve implements Store with a conditional PutItem.
func (d *DynamoDB) Reserve(ctx context.Context, entityID string, now time.Time, cooldown time.Duration) (bool, error) {
	_, err := d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item: map[string]types.AttributeValue{
			dynamoKey:       &types.AttributeValueMemberS{Value: entityID},
			dynamoTimestamp: &types.AttributeValueMemberN{Value: dynamoSeconds(now)},
		},
		ConditionExpression: aws.String("attribute_not_exists(#pk) OR #ts <= :cutoff"),
		ExpressionAttributeNames: map[string]string{
			"#pk": dynamoKey,
			"#ts": dynamoTimestamp,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": &types.AttributeValueMemberN{Value: dynamoSeconds(now.Add(-cooldown))},
		},
	})

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to reserve cooldown for %s: %w", entityID, err)
	}
	return true, nil
}

// Last implements Store.
func (d *DynamoDB) Last(ctx context.Context, entityID string) (*model.CooldownRecord, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            map[string]types.AttributeValue{dynamoKey: &types.AttributeValueMemberS{Value: entityID}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read cooldown for %s: %w", entityID, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	n, ok := out.Item[dynamoTimestamp].(*types.AttributeValueMemberN)
	if !ok {
		return nil, fmt.Errorf("cooldown record for %s has no %s", entityID, dynamoTimestamp)
	}
	secs, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt cooldown record for %s: %w", entityID, err)
	}
	return &model.CooldownRecord{EntityID: entityID, LastAlert: time.UnixMilli(int64(math.Round(secs * 1000)))}, nil
}

// dynamoSeconds renders t as fractional Unix seconds, e.g. "1700000000.900".
func dynamoSeconds(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMilli())/1000, 'f', 3, 64)
}

// Close implements Store.
func (d *DynamoDB) Close() error { return nil }
