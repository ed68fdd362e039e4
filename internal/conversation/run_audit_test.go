package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

type mockDynamo struct {
	putInput *dynamodb.PutItemInput
	getItem  *dynamodb.GetItemOutput
	err      error
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = in
	if m.err != nil {
		return nil, m.err
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.getItem == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return m.getItem, nil
}

func TestRunAuditStore_RecordSetsTTL(t *testing.T) {
	mock := &mockDynamo{}
	store := NewRunAuditStore(mock, "conversation_runs")

	err := store.Record(context.Background(), RunRecord{RunID: "run_1", Status: "completed", Cycles: 2, Tools: []string{ToolCatalogSearch}})
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if mock.putInput == nil || *mock.putInput.TableName != "conversation_runs" {
		t.Fatalf("expected PutItem on conversation_runs, got %+v", mock.putInput)
	}

	var stored RunRecord
	if err := attributevalue.UnmarshalMap(mock.putInput.Item, &stored); err != nil {
		t.Fatalf("failed to unmarshal stored record: %v", err)
	}
	if stored.Cycles != 2 || stored.Status != "completed" {
		t.Fatalf("unexpected stored record: %+v", stored)
	}
	if stored.ExpiresAt <= time.Now().Unix() {
		t.Fatal("expected TTL in the future")
	}
}

func TestRunAuditStore_RecordRequiresRunID(t *testing.T) {
	if err := NewRunAuditStore(&mockDynamo{}, "runs").Record(context.Background(), RunRecord{}); err == nil {
		t.Fatal("expected error for missing run id")
	}
}

func TestRunAuditStore_Get(t *testing.T) {
	item, err := attributevalue.MarshalMap(RunRecord{RunID: "run_9", Status: "cycle_cap", Fallback: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	store := NewRunAuditStore(&mockDynamo{getItem: &dynamodb.GetItemOutput{Item: item}}, "runs")

	rec, err := store.Get(context.Background(), "run_9")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if rec.Status != "cycle_cap" || !rec.Fallback {
		t.Fatalf("unexpected record: %+v", rec)
	}

	_, err = NewRunAuditStore(&mockDynamo{}, "runs").Get(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunAuditStore_PropagatesErrors(t *testing.T) {
	store := NewRunAuditStore(&mockDynamo{err: errors.New("throttled")}, "runs")
	if err := store.Record(context.Background(), RunRecord{RunID: "run_1"}); err == nil {
		t.Fatal("expected PutItem error")
	}
}
