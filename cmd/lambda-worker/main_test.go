package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"intake-backend/internal/queue"
)

type applierFunc func(ctx context.Context, msg queue.ResultMessage) error

func (f applierFunc) ApplyResult(ctx context.Context, msg queue.ResultMessage) error {
	return f(ctx, msg)
}

func TestProcessBatchReportsOnlyTransientFailures(t *testing.T) {
	applier := applierFunc(func(_ context.Context, msg queue.ResultMessage) error {
		switch msg.DocumentID {
		case "doc-transient":
			return errors.New("db down")
		case "doc-stale":
			return queue.Permanent(errors.New("already posted"))
		}
		return nil
	})
	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "1", Body: `{"documentId":"doc-ok","tenantId":"t","status":"EXTRACTED"}`},
		{MessageId: "2", Body: `{"documentId":"doc-transient","tenantId":"t","status":"EXTRACTED"}`},
		{MessageId: "3", Body: `{"documentId":"doc-stale","tenantId":"t","status":"EXTRACTED"}`},
		{MessageId: "4", Body: `not json`},
	}}

	resp := processBatch(context.Background(), applier, event)
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "2" {
		t.Fatalf("unexpected failures: %+v", resp.BatchItemFailures)
	}
}
