package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSAPI is the subset of the SQS client used for publishing.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends queue messages to AWS SQS, one queue URL per queue name.
type SQSPublisher struct {
	client SQSAPI
	urls   map[string]string
}

// NewSQSPublisher constructs an SQS-backed publisher.
func NewSQSPublisher(ctx context.Context, region string, urls map[string]string) (*SQSPublisher, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("SQS_QUEUE_URLS is required")
	}
	region = strings.TrimSpace(region)
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSQSPublisherWithClient(sqs.NewFromConfig(cfg), urls), nil
}

// NewSQSPublisherWithClient wires an existing client.
func NewSQSPublisherWithClient(client SQSAPI, urls map[string]string) *SQSPublisher {
	copied := make(map[string]string, len(urls))
	for name, url := range urls {
		copied[strings.TrimSpace(name)] = strings.TrimSpace(url)
	}
	return &SQSPublisher{client: client, urls: copied}
}

// URL returns the queue URL configured for queueName.
func (s *SQSPublisher) URL(queueName string) (string, bool) {
	url, ok := s.urls[queueName]
	return url, ok && url != ""
}

// Publish delivers payload to the SQS queue mapped to queueName.
func (s *SQSPublisher) Publish(ctx context.Context, queueName string, payload []byte) error {
	url, ok := s.URL(queueName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	}
	_, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}

var _ Publisher = (*SQSPublisher)(nil)
