package etl

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/oksasatya/usage-aggregate-service/internal/application"
	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
)

// Sink receives parsed rows. A Sink error for one row is counted and logged;
// it does not stop the load.
type Sink interface {
	Send(ctx context.Context, row Row) error
}

// Publisher is satisfied by helpers.RabbitPublisher.
type Publisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// QueueSink publishes each row as a JSON message for the ingestion worker.
type QueueSink struct {
	Pub Publisher
}

func (s QueueSink) Send(ctx context.Context, row Row) error {
	return s.Pub.PublishJSON(ctx, row)
}

// Creator is satisfied by application.Service.
type Creator interface {
	CreateAggregate(ctx context.Context, in entity.AggregateInput) (*entity.Aggregate, error)
}

// ServiceSink writes each row straight through the request service.
type ServiceSink struct {
	Svc Creator
}

func (s ServiceSink) Send(ctx context.Context, row Row) error {
	_, err := s.Svc.CreateAggregate(ctx, row.Input)
	return err
}

// Result summarizes one load.
type Result struct {
	Sent     int64
	Failed   int64
	Rejected int64 // validation faults, a subset of Failed
}

// Load sends rows to sink with at most concurrency in flight. It returns
// early only when ctx is cancelled.
func Load(ctx context.Context, rows []Row, sink Sink, concurrency int, logger *logrus.Logger) (Result, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	var sent, failed, rejected atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, row := range rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := sink.Send(gctx, row); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				if application.IsValidation(err) {
					rejected.Add(1)
				}
				logger.WithError(err).WithFields(logrus.Fields{
					"line":      row.Line,
					"source_id": row.SourceID,
				}).Warn("row not loaded")
				return nil
			}
			sent.Add(1)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return Result{Sent: sent.Load(), Failed: failed.Load(), Rejected: rejected.Load()}, err
}
