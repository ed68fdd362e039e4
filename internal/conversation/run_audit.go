package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const runAuditTTL = 30 * 24 * time.Hour

// ErrRunNotFound indicates the requested run has no audit record.
var ErrRunNotFound = errors.New("conversation: run not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// RunRecord summarizes one run for later inspection.
type RunRecord struct {
	RunID      string   `dynamodbav:"runId" json:"runId"`
	ThreadID   string   `dynamodbav:"threadId" json:"threadId"`
	OrgID      string   `dynamodbav:"orgId" json:"orgId"`
	ContactID  string   `dynamodbav:"contactId" json:"contactId"`
	AgentID    string   `dynamodbav:"agentId,omitempty" json:"agentId,omitempty"`
	Status     string   `dynamodbav:"status" json:"status"`
	Cycles     int      `dynamodbav:"cycles" json:"cycles"`
	Tools      []string `dynamodbav:"tools,omitempty" json:"tools,omitempty"`
	Fallback   bool     `dynamodbav:"fallback" json:"fallback"`
	Error      string   `dynamodbav:"error,omitempty" json:"error,omitempty"`
	StartedAt  string   `dynamodbav:"startedAt" json:"startedAt"`
	FinishedAt string   `dynamodbav:"finishedAt" json:"finishedAt"`
	ExpiresAt  int64    `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// RunAuditor records finished runs.
type RunAuditor interface {
	Record(ctx context.Context, rec RunRecord) error
}

// RunAuditStore writes run records to DynamoDB.
type RunAuditStore struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time
}

var _ RunAuditor = (*RunAuditStore)(nil)

func NewRunAuditStore(client dynamoAPI, tableName string) *RunAuditStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: run audit table name cannot be empty")
	}
	return &RunAuditStore{client: client, tableName: tableName, now: time.Now}
}

func (s *RunAuditStore) Record(ctx context.Context, rec RunRecord) error {
	if rec.RunID == "" {
		return errors.New("conversation: run id required")
	}
	if rec.ExpiresAt == 0 {
		rec.ExpiresAt = s.now().Add(runAuditTTL).Unix()
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal run record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("conversation: failed to persist run record: %w", err)
	}
	return nil
}

func (s *RunAuditStore) Get(ctx context.Context, runID string) (*RunRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"runId": &types.AttributeValueMemberS{Value: runID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to load run record: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrRunNotFound
	}
	var rec RunRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode run record: %w", err)
	}
	return &rec, nil
}
