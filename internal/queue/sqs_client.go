package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const defaultRegion = "us-east-1"

// ErrNoQueueURL is returned when the queue URL is not configured.
var ErrNoQueueURL = errors.New("PROCESSING_QUEUE_URL is required")

type sqsSender interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSClient publishes processing messages to SQS. FIFO queues get one
// message group per document so attempts for a document are delivered in
// order, and a per-attempt deduplication ID.
type SQSClient struct {
	api      sqsSender
	queueURL string
	fifo     bool
}

// NewSQSClient builds a client from the default AWS credential chain.
func NewSQSClient(ctx context.Context, queueURL, region string) (*SQSClient, error) {
	if strings.TrimSpace(queueURL) == "" {
		return nil, ErrNoQueueURL
	}
	if region = strings.TrimSpace(region); region == "" {
		region = defaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSQSClient(sqs.NewFromConfig(cfg), queueURL), nil
}

func newSQSClient(api sqsSender, queueURL string) *SQSClient {
	queueURL = strings.TrimSpace(queueURL)
	return &SQSClient{api: api, queueURL: queueURL, fifo: strings.HasSuffix(queueURL, ".fifo")}
}

// Send publishes msg. Routing fields are duplicated into message attributes
// so they are visible in the console without decoding the body.
func (s *SQSClient) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode sqs message: %w", err)
	}

	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"documentId": stringAttr(msg.DocumentID),
			"attempt":    {DataType: aws.String("Number"), StringValue: aws.String(strconv.Itoa(msg.Attempt))},
		},
	}
	if msg.RequestID != "" {
		in.MessageAttributes["requestId"] = stringAttr(msg.RequestID)
	}
	if s.fifo {
		in.MessageGroupId = aws.String(msg.DocumentID)
		in.MessageDeduplicationId = aws.String(msg.DedupID())
	}

	if _, err := s.api.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

var _ Client = (*SQSClient)(nil)
