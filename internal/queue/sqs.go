package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/classtream/classtream/internal/logger"
	"github.com/classtream/classtream/pkg/models"
)

// SQS configuration constants
const (
	SQSMaxMessages       = 1
	SQSWaitTimeSeconds   = 20
	SQSVisibilityTimeout = 900 // 15 minutes
	SQSMaxDelaySeconds   = 900 // SQS DelaySeconds ceiling
)

// SQSBroker implements Broker on an SQS queue. Retry delays ride on
// DelaySeconds of the re-enqueued message.
type SQSBroker struct {
	client   *sqs.Client
	queueURL string
	log      *slog.Logger
}

// NewSQSBroker creates an SQSBroker.
func NewSQSBroker(client *sqs.Client, queueURL string, log *slog.Logger) *SQSBroker {
	return &SQSBroker{
		client:   client,
		queueURL: queueURL,
		log:      log,
	}
}

// Client exposes the underlying SQS client for health checks.
func (b *SQSBroker) Client() *sqs.Client {
	return b.client
}

// QueueURL returns the configured queue URL.
func (b *SQSBroker) QueueURL() string {
	return b.queueURL
}

func (b *SQSBroker) Send(ctx context.Context, job *models.ProcessingJob, delay time.Duration) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	delaySeconds := int32(delay / time.Second)
	if delaySeconds > SQSMaxDelaySeconds {
		delaySeconds = SQSMaxDelaySeconds
	}

	_, err = b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(b.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySeconds,
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Receive long-polls for jobs. Messages that fail to parse are deleted and
// logged rather than redelivered forever.
func (b *SQSBroker) Receive(ctx context.Context) ([]Delivery, error) {
	result, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(b.queueURL),
		MaxNumberOfMessages: SQSMaxMessages,
		WaitTimeSeconds:     SQSWaitTimeSeconds,
		VisibilityTimeout:   SQSVisibilityTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	deliveries := make([]Delivery, 0, len(result.Messages))
	for _, msg := range result.Messages {
		receipt := aws.ToString(msg.ReceiptHandle)

		job, err := parseJob(aws.ToString(msg.Body))
		if err != nil {
			logger.Error(ctx, b.log, "Dropping unparseable job message",
				"error", err,
				"messageId", aws.ToString(msg.MessageId),
			)
			if delErr := b.Delete(ctx, receipt); delErr != nil {
				logger.Error(ctx, b.log, "Failed to delete poison message", "error", delErr)
			}
			continue
		}

		deliveries = append(deliveries, Delivery{Job: job, Receipt: receipt})
	}

	return deliveries, nil
}

func (b *SQSBroker) Delete(ctx context.Context, receipt string) error {
	_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(b.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func parseJob(body string) (*models.ProcessingJob, error) {
	if body == "" {
		return nil, fmt.Errorf("%w: empty message body", models.ErrJobParseFailed)
	}

	var job models.ProcessingJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrJobParseFailed, err)
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	if job.MaxAttempts < 1 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrJobParseFailed, err)
	}
	return &job, nil
}
