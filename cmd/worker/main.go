package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"intake-backend/internal/bootstrap"
	"intake-backend/internal/queue"
	"intake-backend/internal/shared/config"
	"intake-backend/internal/shared/metrics"
	"intake-backend/internal/shared/telemetry"
	"intake-backend/internal/workerproc"
)

const (
	defaultRegion             = "us-east-1"
	defaultVisibilitySeconds  = 300
	defaultShutdownTimeoutSec = 30
	durableName               = "intake-results"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	queueName := strings.TrimSpace(cfg.WorkerQueue)
	if queueName == "" {
		queueName = queue.QueueResults
	}

	switch cfg.QueueBackend {
	case "nats":
		log.Printf("worker started backend=nats queue=%s batch=%d", queueName, cfg.WorkerMaxInFlight)
		err := app.Consumer.Consume(ctx, queueName, durableName, cfg.WorkerMaxInFlight, workerproc.Handler(app.PipelineService))
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("consume: %v", err)
		}
	case "sqs":
		queueURL := strings.TrimSpace(cfg.SQSQueueURLs[queueName])
		if queueURL == "" {
			log.Fatalf("SQS_QUEUE_URLS has no entry for %q", queueName)
		}
		runSQS(ctx, cfg, queueURL, app.PipelineService)
	default:
		log.Fatalf("worker requires QUEUE_BACKEND=sqs or nats, got %q", cfg.QueueBackend)
	}
}

func runSQS(ctx context.Context, cfg config.Config, queueURL string, applier workerproc.ResultApplier) {
	visibilitySeconds := envInt("WORKER_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
	concurrency := cfg.WorkerMaxInFlight
	shutdownTimeout := time.Duration(envInt("WORKER_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	region := cfg.AWSRegion
	if region == "" {
		region = defaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	sem := make(chan struct{}, max(1, concurrency))
	var wg sync.WaitGroup

	log.Printf("worker started backend=sqs queue=%s concurrency=%d visibility=%ds", queueURL, concurrency, visibilitySeconds)

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncWorkerMessage("received")
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, sqsClient, queueURL, applier, m)
			}(msg)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight results", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight results")
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

func handleMessage(ctx context.Context, client sqsAPI, queueURL string, applier workerproc.ResultApplier, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, "")
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		telemetry.Error("worker.result.decode_failed", fields)
		if deleteMessage(ctx, client, queueURL, msg, "") {
			metrics.IncWorkerMessage("dropped")
		}
		return
	}

	telemetry.Info("worker.result.received", baseFields(msg, decoded.DocumentID))

	ctxWithParsed := workerproc.WithParsedMessage(ctx, decoded)
	if err := workerproc.HandleMessage(ctxWithParsed, applier, body); err != nil {
		fields := baseFields(msg, decoded.DocumentID)
		fields["error"] = err.Error()
		if workerproc.IsPoison(err) {
			telemetry.Error("worker.result.rejected", fields)
			if deleteMessage(ctx, client, queueURL, msg, decoded.DocumentID) {
				metrics.IncWorkerMessage("dropped")
			}
			return
		}
		telemetry.Error("worker.result.failed", fields)
		metrics.IncWorkerMessage("failed")
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, decoded.DocumentID) {
		telemetry.Info("worker.result.completed", baseFields(msg, decoded.DocumentID))
		metrics.IncWorkerMessage("completed")
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, documentID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, documentID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.result.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, documentID)
		fields["error"] = err.Error()
		telemetry.Error("worker.result.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, documentID string) map[string]any {
	fields := map[string]any{
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if documentID != "" {
		fields["document_id"] = documentID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
