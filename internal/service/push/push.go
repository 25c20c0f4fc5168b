package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	pushadapter "github.com/smallbiznis/valora-bff/internal/adapter/push"
	"github.com/smallbiznis/valora-bff/internal/domain"
	"github.com/smallbiznis/valora-bff/internal/repository"
)

// Task routing for queued delivery.
const (
	TypeDeliver = "push:deliver"
	QueueName   = "push"
	MaxRetry    = 5
)

// Result describes what happened to a send request.
type Result struct {
	Queued bool   `json:"queued"`
	TaskID string `json:"task_id,omitempty"`
	Sent   int    `json:"sent"`
}

// Dispatcher hands a notification to the delivery path.
type Dispatcher interface {
	Dispatch(ctx context.Context, n domain.Notification) (Result, error)
}

// Deliverer fans a notification out to every device of its user.
type Deliverer struct {
	tokens repository.PushTokenRepository
	sender pushadapter.Sender
	logger *zap.Logger
}

func NewDeliverer(tokens repository.PushTokenRepository, sender pushadapter.Sender, logger *zap.Logger) *Deliverer {
	return &Deliverer{tokens: tokens, sender: sender, logger: logger}
}

// Deliver sends n and prunes tokens the gateway no longer accepts.
func (d *Deliverer) Deliver(ctx context.Context, n domain.Notification) (int, error) {
	tokens, err := d.tokens.ForUser(ctx, n.UserID)
	if err != nil {
		return 0, fmt.Errorf("load push tokens: %w", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}
	messages := make([]pushadapter.Message, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, pushadapter.Message{To: token, Title: n.Title, Body: n.Body, Data: n.Data, Sound: "default"})
	}
	invalid, err := d.sender.Send(ctx, messages)
	if err != nil {
		return 0, err
	}
	for _, token := range invalid {
		if err := d.tokens.Delete(ctx, n.UserID, token); err != nil {
			d.log().Warn("prune push token", zap.String("user_id", n.UserID), zap.Error(err))
		}
	}
	return len(messages) - len(invalid), nil
}

func (d *Deliverer) log() *zap.Logger {
	if d.logger != nil {
		return d.logger
	}
	return zap.L()
}

// InlineDispatcher delivers during the request.
type InlineDispatcher struct {
	deliverer *Deliverer
}

var _ Dispatcher = (*InlineDispatcher)(nil)

func NewInlineDispatcher(d *Deliverer) *InlineDispatcher {
	return &InlineDispatcher{deliverer: d}
}

func (i *InlineDispatcher) Dispatch(ctx context.Context, n domain.Notification) (Result, error) {
	sent, err := i.deliverer.Deliver(ctx, n)
	if err != nil {
		return Result{}, err
	}
	return Result{Sent: sent}, nil
}

// Enqueuer is the part of asynq.Client the queue dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueDispatcher defers delivery to the asynq worker.
type QueueDispatcher struct {
	client Enqueuer
}

var _ Dispatcher = (*QueueDispatcher)(nil)

func NewQueueDispatcher(client Enqueuer) *QueueDispatcher {
	return &QueueDispatcher{client: client}
}

func (q *QueueDispatcher) Dispatch(ctx context.Context, n domain.Notification) (Result, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return Result{}, fmt.Errorf("encode push task: %w", err)
	}
	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TypeDeliver, payload),
		asynq.Queue(QueueName),
		asynq.MaxRetry(MaxRetry),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return Result{}, fmt.Errorf("enqueue push task: %w", err)
	}
	return Result{Queued: true, TaskID: info.ID}, nil
}

// Worker processes queued deliveries.
type Worker struct {
	deliverer *Deliverer
	logger    *zap.Logger
}

func NewWorker(d *Deliverer, logger *zap.Logger) *Worker {
	return &Worker{deliverer: d, logger: logger}
}

// Register mounts the worker's handlers on mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeDeliver, w.HandleDeliver)
}

// HandleDeliver is the asynq handler for TypeDeliver. Malformed payloads are
// not retried.
func (w *Worker) HandleDeliver(ctx context.Context, task *asynq.Task) error {
	var n domain.Notification
	if err := json.Unmarshal(task.Payload(), &n); err != nil {
		return fmt.Errorf("decode push task: %v: %w", err, asynq.SkipRetry)
	}
	sent, err := w.deliverer.Deliver(ctx, n)
	if err != nil {
		return fmt.Errorf("deliver push: %w", err)
	}
	w.log().Info("push delivered", zap.String("user_id", n.UserID), zap.Int("sent", sent))
	return nil
}

func (w *Worker) log() *zap.Logger {
	if w.logger != nil {
		return w.logger
	}
	return zap.L()
}
