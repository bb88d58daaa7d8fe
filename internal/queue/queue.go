// Package queue wraps the message queues the pipeline consumes from and
// publishes to.
package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Message is one received queue message.
type Message struct {
	Body          string
	ReceiptHandle string
}

// Client is a thin wrapper over the SQS API.
type Client struct {
	sqs *sqs.Client
	log *slog.Logger
}

// New builds a queue client. endpoint overrides the service URL for local
// stacks and is empty in real deployments.
func New(awsCfg aws.Config, endpoint string, logger *slog.Logger) *Client {
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &Client{sqs: client, log: logger}
}

// Send publishes one message body, optionally delayed. SQS caps the delay at
// 900 seconds; config validation enforces that bound.
func (c *Client) Send(ctx context.Context, queueURL, body string, delaySeconds int32) error {
	_, err := c.sqs.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(queueURL),
		MessageBody:  aws.String(body),
		DelaySeconds: delaySeconds,
	})
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", queueURL, err)
	}
	c.log.Debug("message sent", "queue", queueURL, "delay_seconds", delaySeconds)
	return nil
}

// Receive long-polls for up to max messages.
func (c *Client) Receive(ctx context.Context, queueURL string, max, waitSeconds int32) ([]Message, error) {
	out, err := c.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: max,
		WaitTimeSeconds:     waitSeconds,
		AttributeNames:      []types.QueueAttributeName{types.QueueAttributeNameAll},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive from %s: %w", queueURL, err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		messages = append(messages, Message{
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		})
	}
	return messages, nil
}

// Delete acknowledges one message by receipt handle.
func (c *Client) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	_, err := c.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message from %s: %w", queueURL, err)
	}
	c.log.Debug("message deleted", "queue", queueURL)
	return nil
}
