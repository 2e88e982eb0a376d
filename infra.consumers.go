package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

type Consumer interface {
	Consume(ctx context.Context, qids ...string) error
}

const (
	popRetryMinDelay = 100 * time.Millisecond
	popRetryMaxDelay = 5 * time.Second
)

// newPopBackOff never gives up: consumers only stop with their context.
func newPopBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = popRetryMinDelay
	b.MaxInterval = popRetryMaxDelay
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// popLoop pops payloads until the context is done and hands each one to handle.
// Failed pops are retried after an exponential delay capped at popRetryMaxDelay.
func popLoop(ctx context.Context, logger *zap.Logger, queue Queuer, handle func(qid string, payload []byte), qids ...string) error {
	retry := newPopBackOff()
	for {
		qid, payload, err := queue.Pop(ctx, qids...)
		if err != nil && ctx.Err() != nil {
			logger.Info("consumer: queue pop call: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}

		if err != nil {
			delay := retry.NextBackOff()
			logger.Error("consumer: error on queue pop call", zap.Strings("qids", qids), zap.Duration("retry.in", delay), zap.Error(err))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				logger.Info("consumer: waiting to retry: context is done: exit", zap.String("reason", ctx.Err().Error()))
				return nil
			case <-timer.C:
			}
			continue
		}
		retry.Reset()
		handle(qid, payload)
	}
}

type boltDBConsumer struct {
	logger *zap.Logger
	queue  Queuer
	backup BookBackup
}

// NewBoltDBConsumer provides the consumer mirroring book events into the backup replica.
func NewBoltDBConsumer(logger *zap.Logger, q Queuer, backup BookBackup) Consumer {
	return &boltDBConsumer{logger, q, backup}
}

func (bc *boltDBConsumer) Consume(ctx context.Context, qids ...string) error {
	return popLoop(ctx, bc.logger, bc.queue, func(qid string, payload []byte) {
		bc.handle(ctx, qid, payload)
	}, qids...)
}

func (bc *boltDBConsumer) handle(ctx context.Context, qid string, payload []byte) {
	var event BookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		bc.logger.Error("consumer: failed to decode book event", zap.String("qid", qid), zap.ByteString("payload", payload), zap.Error(err))
		return
	}

	switch qid {
	case BookCreateQueue, BookUpdateQueue:
		if event.Book == nil {
			bc.logger.Warn("consumer: book event without book", zap.String("qid", qid), zap.Int64("book.id", event.BookID))
			return
		}
		if err := bc.backup.Save(ctx, *event.Book); err != nil {
			bc.logger.Error("consumer: failed to save", zap.String("qid", qid), zap.Int64("book.id", event.BookID), zap.Error(err))
		}
	case BookDeleteQueue:
		if err := bc.backup.Delete(ctx, event.OwnerID, event.BookID); err != nil {
			bc.logger.Error("consumer: failed to delete", zap.Int64("book.id", event.BookID), zap.Error(err))
		}
	default:
		bc.logger.Warn("consumer: received book event on unknow queue id", zap.String("qid", qid), zap.Int64("book.id", event.BookID))
	}
}

type mailConsumer struct {
	logger *zap.Logger
	queue  Queuer
	mailer Mailer
}

// NewMailConsumer provides the consumer delivering verification mails.
func NewMailConsumer(logger *zap.Logger, q Queuer, mailer Mailer) Consumer {
	return &mailConsumer{logger, q, mailer}
}

func (mc *mailConsumer) Consume(ctx context.Context, qids ...string) error {
	return popLoop(ctx, mc.logger, mc.queue, func(qid string, payload []byte) {
		var mail VerificationMail
		if err := json.Unmarshal(payload, &mail); err != nil {
			mc.logger.Error("consumer: failed to decode mail", zap.String("qid", qid), zap.Error(err))
			return
		}
		if err := mc.mailer.SendVerification(ctx, mail); err != nil {
			mc.logger.Error("consumer: failed to send mail", zap.String("qid", qid), zap.String("mail.to", mail.To), zap.Error(err))
		}
	}, qids...)
}
