package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

type dynamodbInterface interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type itemKey struct {
	Namespace string `dynamodbav:"Namespace"`
	Key       string `dynamodbav:"Key"`
}

type item struct {
	Namespace string `dynamodbav:"Namespace"`
	Key       string `dynamodbav:"Key"`
	Value     string `dynamodbav:"Value"`
	UpdatedAt string `dynamodbav:"UpdatedAt"`
}

// DynamoDBStore expects a table with partition key "Namespace" and sort key "Key".
type DynamoDBStore struct {
	db        dynamodbInterface
	tableName string
	namespace string
}

func NewDynamoDBStore(db *dynamodb.Client, tableName string, namespace string) *DynamoDBStore {
	return &DynamoDBStore{
		db:        db,
		tableName: tableName,
		namespace: namespace,
	}
}

func (s *DynamoDBStore) Get(ctx context.Context, key string) (string, error) {
	k, err := attributevalue.MarshalMap(itemKey{Namespace: s.namespace, Key: key})
	if err != nil {
		return "", err
	}

	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            k,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", err
	}
	if len(out.Item) == 0 {
		return "", ErrNotFound
	}

	var row item
	if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
		return "", fmt.Errorf("failed to unmarshal kv item %s: %w", key, err)
	}
	return row.Value, nil
}

func (s *DynamoDBStore) Set(ctx context.Context, key string, value string) error {
	av, err := attributevalue.MarshalMap(item{
		Namespace: s.namespace,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	return err
}

func (s *DynamoDBStore) Delete(ctx context.Context, key string) error {
	k, err := attributevalue.MarshalMap(itemKey{Namespace: s.namespace, Key: key})
	if err != nil {
		return err
	}

	_, err = s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       k,
	})
	return err
}

func (s *DynamoDBStore) List(ctx context.Context, prefix string) (map[string]string, error) {
	keyCond := expression.Key("Namespace").Equal(expression.Value(s.namespace))
	if prefix != "" {
		keyCond = keyCond.And(expression.Key("Key").BeginsWith(prefix))
	}

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, err
	}

	paginator := dynamodb.NewQueryPaginator(s.db, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	})

	out := map[string]string{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		var rows []item
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &rows); err != nil {
			return nil, err
		}
		for _, row := range rows {
			out[row.Key] = row.Value
		}
	}
	return out, nil
}

func (s *DynamoDBStore) Close() error {
	return nil
}
