package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"agentchat/internal/model"
)

var errBadActivity = errors.New("malformed session activity")

type SessionToucher interface {
	Touch(ctx context.Context, sessionID string, at time.Time) error
}

// ActivityWorker advances chat_sessions.date_time from published activity
// events.
type ActivityWorker struct {
	conn      *amqp.Connection
	sessions  SessionToucher
	queueName string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewActivityWorker(conn *amqp.Connection, sessions SessionToucher, queueName string, logger *zap.Logger) *ActivityWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityWorker{
		conn:      conn,
		sessions:  sessions,
		queueName: queueName,
		logger:    logger,
	}
}

func (w *ActivityWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}
	if _, err := ch.QueueDeclare(w.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "agentchat-activity", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.logger.Warn("activity deliveries closed")
					return
				}
				w.deliver(workerCtx, d)
			}
		}
	}()

	w.logger.Info("activity worker started", zap.String("queue", w.queueName))
	return nil
}

func (w *ActivityWorker) deliver(ctx context.Context, d amqp.Delivery) {
	err := w.Handle(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errBadActivity):
		w.logger.Error("drop malformed activity", zap.Error(err))
		_ = d.Nack(false, false)
	default:
		// Requeue once; a second failure drops the event.
		w.logger.Error("touch session failed", zap.Bool("redelivered", d.Redelivered), zap.Error(err))
		_ = d.Nack(false, !d.Redelivered)
	}
}

// Handle applies one encoded SessionActivity.
func (w *ActivityWorker) Handle(ctx context.Context, body []byte) error {
	var activity model.SessionActivity
	if err := json.Unmarshal(body, &activity); err != nil {
		return fmt.Errorf("%w: %v", errBadActivity, err)
	}
	if activity.SessionID == "" || activity.At.IsZero() {
		return errBadActivity
	}
	return w.sessions.Touch(ctx, activity.SessionID, activity.At)
}

func (w *ActivityWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
