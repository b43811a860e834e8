package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoStore keeps documents in a single DynamoDB table with the
// collection as partition key and the document id as sort key.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
}

// dynamoItem represents a document stored in DynamoDB. The document
// body travels as a JSON string so the table schema stays fixed no
// matter what the documents contain.
type dynamoItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      string `dynamodbav:"Data"`
	Timestamp string `dynamodbav:"Timestamp"`
}

// NewDynamoStore creates a DynamoDB-backed store. An empty profile uses
// the default credential chain (IAM role on ECS).
func NewDynamoStore(ctx context.Context, table, region, profile string) (*DynamoStore, error) {
	var cfg aws.Config
	var err error

	if profile != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithSharedConfigProfile(profile),
		)
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &DynamoStore{
		client: dynamodb.NewFromConfig(cfg),
		table:  table,
	}, nil
}

func dynamoDocKey(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: collection},
		"SK": &types.AttributeValueMemberS{Value: id},
	}
}

// FindOne returns the document with the given id, or ErrNoDocuments.
func (s *DynamoStore) FindOne(ctx context.Context, collection, id string) (Doc, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       dynamoDocKey(collection, id),
	})
	if err != nil {
		return nil, fmt.Errorf("getting item from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNoDocuments
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling item: %w", err)
	}
	var doc Doc
	if err := json.Unmarshal([]byte(item.Data), &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling document data: %w", err)
	}
	return doc, nil
}

// FindAll returns every document in the collection, following query
// pagination until the partition is exhausted.
func (s *DynamoStore) FindAll(ctx context.Context, collection string) ([]Doc, error) {
	docs := []Doc{}
	var startKey map[string]types.AttributeValue

	for {
		result, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: collection},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("querying DynamoDB: %w", err)
		}

		for _, raw := range result.Items {
			var item dynamoItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("unmarshaling item: %w", err)
			}
			var doc Doc
			if err := json.Unmarshal([]byte(item.Data), &doc); err != nil {
				return nil, fmt.Errorf("unmarshaling document data: %w", err)
			}
			docs = append(docs, doc)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return docs, nil
}

func (s *DynamoStore) marshalItem(collection string, doc Doc) (map[string]types.AttributeValue, error) {
	id := doc.ID()
	if id == "" {
		return nil, errors.New("document has no _id")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling document: %w", err)
	}
	item := dynamoItem{
		PK:        collection,
		SK:        id,
		Data:      string(data),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("marshaling item: %w", err)
	}
	return av, nil
}

// InsertOne stores a new document using a conditional put so concurrent
// inserts of the same id cannot both succeed.
func (s *DynamoStore) InsertOne(ctx context.Context, collection string, doc Doc) error {
	av, err := s.marshalItem(collection, doc)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(SK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return ErrDuplicateID
		}
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}

// ReplaceOne overwrites the document with the given id. Without upsert
// the put is conditioned on the item existing; a failed condition
// reports zero matches instead of an error.
func (s *DynamoStore) ReplaceOne(ctx context.Context, collection, id string, doc Doc, upsert bool) (int, error) {
	av, err := s.marshalItem(collection, doc)
	if err != nil {
		return 0, err
	}

	input := &dynamodb.PutItemInput{
		TableName:    aws.String(s.table),
		Item:         av,
		ReturnValues: types.ReturnValueAllOld,
	}
	if !upsert {
		input.ConditionExpression = aws.String("attribute_exists(SK)")
	}

	result, err := s.client.PutItem(ctx, input)
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return 0, nil
		}
		return 0, fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	if len(result.Attributes) > 0 {
		return 1, nil
	}
	return 0, nil
}

// DeleteOne removes the document with the given id. Missing documents
// are ignored.
func (s *DynamoStore) DeleteOne(ctx context.Context, collection, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       dynamoDocKey(collection, id),
	})
	if err != nil {
		return fmt.Errorf("deleting item from DynamoDB: %w", err)
	}
	return nil
}

// Drop removes every document in the collection, one page at a time.
func (s *DynamoStore) Drop(ctx context.Context, collection string) error {
	var startKey map[string]types.AttributeValue

	for {
		result, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("PK = :pk"),
			ProjectionExpression:   aws.String("PK, SK"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: collection},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return fmt.Errorf("querying DynamoDB: %w", err)
		}

		for _, raw := range result.Items {
			sk, ok := raw["SK"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if err := s.DeleteOne(ctx, collection, sk.Value); err != nil {
				return err
			}
		}

		if result.LastEvaluatedKey == nil {
			return nil
		}
		startKey = result.LastEvaluatedKey
	}
}

// Close is a no-op; the underlying HTTP client needs no teardown.
func (s *DynamoStore) Close() error {
	return nil
}
