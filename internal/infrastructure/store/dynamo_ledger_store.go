package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/ec-stock-reservation/internal/config"
	"github.com/example/ec-stock-reservation/internal/domain/ledger"
)

const conditionalCheckFailed = "ConditionalCheckFailed"

type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// NewDynamoClient builds a DynamoDB client for the configured region. A
// non-empty endpoint points it at a local emulator.
func NewDynamoClient(ctx context.Context, cfg config.DynamoConfig) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// DynamoLedgerStore keeps the stock ledger in DynamoDB. A delta and its
// applied-message marker are written in one TransactWriteItems call.
type DynamoLedgerStore struct {
	client       dynamoAPI
	ledgerTable  string
	appliedTable string
}

// dynamoLedgerEntry represents the DynamoDB item structure of a ledger entry
type dynamoLedgerEntry struct {
	ProductID int64  `dynamodbav:"product_id"`
	Quantity  int64  `dynamodbav:"quantity"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

type dynamoAppliedMessage struct {
	MessageID     string `dynamodbav:"message_id"`
	ProductID     int64  `dynamodbav:"product_id"`
	QuantityDelta int64  `dynamodbav:"quantity_delta"`
	AppliedAt     string `dynamodbav:"applied_at"`
}

func NewDynamoLedgerStore(client dynamoAPI, ledgerTable, appliedTable string) *DynamoLedgerStore {
	return &DynamoLedgerStore{
		client:       client,
		ledgerTable:  ledgerTable,
		appliedTable: appliedTable,
	}
}

func (s *DynamoLedgerStore) Seed(ctx context.Context, productID, quantity int64) error {
	item, err := attributevalue.MarshalMap(dynamoLedgerEntry{
		ProductID: productID,
		Quantity:  quantity,
		UpdatedAt: time.Now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.ledgerTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(product_id)"),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ledger.ErrAlreadySeeded
	}
	if err != nil {
		return fmt.Errorf("failed to put ledger entry: %w", err)
	}
	return nil
}

// Apply returns the quantity read right after the transaction, which may
// already include deltas applied concurrently by other consumers.
func (s *DynamoLedgerStore) Apply(ctx context.Context, messageID string, productID, delta int64) (int64, bool, error) {
	now := time.Now().Format(time.RFC3339Nano)
	marker, err := attributevalue.MarshalMap(dynamoAppliedMessage{
		MessageID:     messageID,
		ProductID:     productID,
		QuantityDelta: delta,
		AppliedAt:     now,
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to marshal applied message: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.appliedTable),
					Item:                marker,
					ConditionExpression: aws.String("attribute_not_exists(message_id)"),
				},
			},
			{
				Update: &types.Update{
					TableName:           aws.String(s.ledgerTable),
					Key:                 productKey(productID),
					UpdateExpression:    aws.String("ADD quantity :delta SET updated_at = :now"),
					ConditionExpression: aws.String("attribute_exists(product_id)"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":delta": &types.AttributeValueMemberN{Value: strconv.FormatInt(delta, 10)},
						":now":   &types.AttributeValueMemberS{Value: now},
					},
				},
			},
		},
	})

	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		reasons := tce.CancellationReasons
		if len(reasons) > 1 && aws.ToString(reasons[1].Code) == conditionalCheckFailed {
			return 0, false, ledger.ErrEntryNotFound
		}
		if len(reasons) > 0 && aws.ToString(reasons[0].Code) == conditionalCheckFailed {
			quantity, err := s.Get(ctx, productID)
			return quantity, false, err
		}
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to apply delta: %w", err)
	}

	quantity, err := s.Get(ctx, productID)
	if err != nil {
		return 0, false, err
	}
	return quantity, true, nil
}

func (s *DynamoLedgerStore) Get(ctx context.Context, productID int64) (int64, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.ledgerTable),
		Key:            productKey(productID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	if result.Item == nil {
		return 0, ledger.ErrEntryNotFound
	}

	var entry dynamoLedgerEntry
	if err := attributevalue.UnmarshalMap(result.Item, &entry); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ledger entry: %w", err)
	}
	return entry.Quantity, nil
}

func (s *DynamoLedgerStore) Delete(ctx context.Context, productID int64) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.ledgerTable),
		Key:       productKey(productID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete ledger entry: %w", err)
	}
	return nil
}

func productKey(productID int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberN{Value: strconv.FormatInt(productID, 10)},
	}
}
