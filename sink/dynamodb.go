package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// DynamoStore writes records to two DynamoDB tables keyed by "id".
type DynamoStore struct {
	svc            dynamodbiface.DynamoDBAPI
	feedbackTable  string
	analyticsTable string
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore uses the default AWS credential chain. region may be
// empty to defer to the environment.
func NewDynamoStore(region, feedbackTable, analyticsTable string) (*DynamoStore, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewDynamoStoreWithClient(dynamodb.New(sess), feedbackTable, analyticsTable), nil
}

func NewDynamoStoreWithClient(svc dynamodbiface.DynamoDBAPI, feedbackTable, analyticsTable string) *DynamoStore {
	return &DynamoStore{svc: svc, feedbackTable: feedbackTable, analyticsTable: analyticsTable}
}

func (s *DynamoStore) SaveFeedback(ctx context.Context, rec FeedbackRecord) (FeedbackRecord, error) {
	rec = rec.stamp(time.Now())
	if err := s.put(ctx, s.feedbackTable, rec); err != nil {
		return FeedbackRecord{}, fmt.Errorf("save feedback: %w", err)
	}
	return rec, nil
}

func (s *DynamoStore) SaveAnalytics(ctx context.Context, rec AnalyticsRecord) error {
	rec = rec.stamp(time.Now())
	if err := s.put(ctx, s.analyticsTable, rec); err != nil {
		return fmt.Errorf("save analytics: %w", err)
	}
	return nil
}

func (s *DynamoStore) put(ctx context.Context, table string, v any) error {
	item, err := dynamodbattribute.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	_, err = s.svc.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	return err
}

func (s *DynamoStore) Close() error { return nil }
