// Package notification publishes job completion messages.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	coreport "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	model "github.com/tigerroll/salesync/pkg/batch/core/domain/model"
	"github.com/tigerroll/salesync/pkg/batch/core/ports"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// CompletionMessage is the JSON body published when a run ends.
type CompletionMessage struct {
	JobRunID   string    `json:"job_run_id"`
	JobName    string    `json:"job_name"`
	Status     string    `json:"status"`
	ExitStatus string    `json:"exit_status"`
	Failures   []string  `json:"failures"`
	ReadCount  int64     `json:"read_count"`
	WriteCount int64     `json:"write_count"`
	EndTime    time.Time `json:"end_time"`
}

// NewCompletionMessage summarizes run.
func NewCompletionMessage(run *model.JobRun) CompletionMessage {
	msg := CompletionMessage{
		JobRunID:   run.ID,
		JobName:    run.JobName,
		Status:     run.Status.String(),
		ExitStatus: run.ExitStatus.String(),
		Failures:   append([]string{}, run.Failures...),
	}
	for _, s := range run.StepRuns {
		msg.ReadCount += s.ReadCount
		msg.WriteCount += s.WriteCount
	}
	if run.EndTime != nil {
		msg.EndTime = *run.EndTime
	}
	return msg
}

// Publisher sends one message to an exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes CompletionMessage as JSON.
type AMQPNotifier struct {
	publisher  Publisher
	exchange   string
	routingKey string
}

func NewAMQPNotifier(publisher Publisher, exchange, routingKey string) *AMQPNotifier {
	return &AMQPNotifier{publisher: publisher, exchange: exchange, routingKey: routingKey}
}

// NotifyJobCompletion publishes the completion message of run.
func (n *AMQPNotifier) NotifyJobCompletion(ctx context.Context, run *model.JobRun) error {
	body, err := json.Marshal(NewCompletionMessage(run))
	if err != nil {
		return fmt.Errorf("failed to encode completion message: %w", err)
	}
	return n.publisher.Publish(ctx, n.exchange, n.routingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    run.ID,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

var _ ports.Notifier = (*AMQPNotifier)(nil)

// ConnectionPublisher dials the broker on first use and redials after a failed publish.
type ConnectionPublisher struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConnectionPublisher(url, exchange string) *ConnectionPublisher {
	return &ConnectionPublisher{url: url, exchange: exchange}
}

func (p *ConnectionPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *ConnectionPublisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("amqp connect: %w", err)
	}
	if err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		p.closeLocked()
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (p *ConnectionPublisher) closeLocked() {
	if p.conn != nil {
		p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func (p *ConnectionPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

// NotificationListener sends a notification after every run. Failures are logged and never fail the run.
type NotificationListener struct {
	notifier ports.Notifier
	timeout  time.Duration
}

func NewNotificationListener(notifier ports.Notifier) *NotificationListener {
	return &NotificationListener{notifier: notifier, timeout: 5 * time.Second}
}

func (l *NotificationListener) BeforeJob(ctx context.Context, run *model.JobRun) {}

func (l *NotificationListener) AfterJob(ctx context.Context, run *model.JobRun) {
	// The run context may already be cancelled by a stop request.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()
	if err := l.notifier.NotifyJobCompletion(pubCtx, run); err != nil {
		logger.Warnf("Notification: failed to publish completion of job '%s' (run %s): %v", run.JobName, run.ID, err)
		return
	}
	logger.Debugf("Notification: published completion of job '%s' (run %s, %s).", run.JobName, run.ID, run.Status)
}

var _ coreport.JobRunListener = (*NotificationListener)(nil)
