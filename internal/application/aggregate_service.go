package application

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
	repo "github.com/oksasatya/usage-aggregate-service/internal/domain/repository"
	"github.com/oksasatya/usage-aggregate-service/pkg/validation"
)

const (
	OpCreate = "create_aggregate"
	OpGet    = "get_aggregate"
	OpLatest = "get_latest_aggregate"
	OpList   = "list_aggregates"
	OpUpdate = "update_aggregate"
	OpDelete = "delete_aggregate"
)

var tracer = otel.Tracer("github.com/oksasatya/usage-aggregate-service/internal/application")

// Mirror receives committed aggregates for a secondary document store.
// Mirror failures never fail the request.
type Mirror interface {
	Index(ctx context.Context, agg *entity.Aggregate) error
	Remove(ctx context.Context, id int64) error
}

// Service validates requests, calls the repository and maps its failures to
// Faults. Every call leaves one trace record in the log.
type Service struct {
	Repo   repo.AggregateRepository
	Mirror Mirror
	Logger *logrus.Logger
}

func NewService(repo repo.AggregateRepository, mirror Mirror, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{Repo: repo, Mirror: mirror, Logger: logger}
}

type ListInput struct {
	Skip  int `json:"skip" validate:"gte=0"`
	Limit int `json:"limit" validate:"gte=0"`
}

func (s *Service) CreateAggregate(ctx context.Context, in entity.AggregateInput) (agg *entity.Aggregate, err error) {
	ctx, end := s.begin(ctx, OpCreate)
	defer func() { end(idOf(agg), err) }()

	if err := validation.Struct(in); err != nil {
		return nil, validationFault(OpCreate, 0, err)
	}
	agg, err = s.Repo.Create(ctx, in)
	if err != nil {
		return nil, storageFault(OpCreate, 0, err)
	}
	s.mirrorIndex(ctx, agg)
	return agg, nil
}

func (s *Service) GetAggregate(ctx context.Context, id int64) (agg *entity.Aggregate, err error) {
	ctx, end := s.begin(ctx, OpGet)
	defer func() { end(id, err) }()

	agg, err = s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, storageFault(OpGet, id, err)
	}
	return agg, nil
}

// GetLatestAggregate returns the aggregate with the highest identifier.
func (s *Service) GetLatestAggregate(ctx context.Context) (agg *entity.Aggregate, err error) {
	ctx, end := s.begin(ctx, OpLatest)
	defer func() { end(idOf(agg), err) }()

	agg, err = s.Repo.GetLatest(ctx)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, &Fault{Kind: KindNotFound, Op: OpLatest, Message: "no users found", Err: err}
		}
		return nil, storageFault(OpLatest, 0, err)
	}
	return agg, nil
}

func (s *Service) ListAggregates(ctx context.Context, in ListInput) (out []entity.Aggregate, err error) {
	ctx, end := s.begin(ctx, OpList)
	defer func() {
		end(0, err, logrus.Fields{"skip": in.Skip, "limit": in.Limit, "count": len(out)})
	}()

	if err := validation.Struct(in); err != nil {
		return nil, validationFault(OpList, 0, err)
	}
	out, err = s.Repo.List(ctx, in.Skip, in.Limit)
	if err != nil {
		return nil, storageFault(OpList, 0, err)
	}
	return out, nil
}

func (s *Service) UpdateAggregate(ctx context.Context, id int64, in entity.AggregateInput) (agg *entity.Aggregate, err error) {
	ctx, end := s.begin(ctx, OpUpdate)
	defer func() { end(id, err) }()

	if err := validation.Struct(in); err != nil {
		return nil, validationFault(OpUpdate, id, err)
	}
	agg, err = s.Repo.Update(ctx, id, in)
	if err != nil {
		return nil, storageFault(OpUpdate, id, err)
	}
	s.mirrorIndex(ctx, agg)
	return agg, nil
}

func (s *Service) DeleteAggregate(ctx context.Context, id int64) (err error) {
	ctx, end := s.begin(ctx, OpDelete)
	defer func() { end(id, err) }()

	if err := s.Repo.Delete(ctx, id); err != nil {
		return storageFault(OpDelete, id, err)
	}
	if s.Mirror != nil {
		if mErr := s.Mirror.Remove(ctx, id); mErr != nil {
			s.Logger.WithError(mErr).WithField("user_id", id).Warn("mirror remove failed")
		}
	}
	return nil
}

func (s *Service) mirrorIndex(ctx context.Context, agg *entity.Aggregate) {
	if s.Mirror == nil || agg == nil {
		return
	}
	if err := s.Mirror.Index(ctx, agg); err != nil {
		s.Logger.WithError(err).WithField("user_id", agg.ID).Warn("mirror index failed")
	}
}

// begin opens a span for op and returns the func that closes it and writes
// the trace record.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(id int64, err error, extra ...logrus.Fields)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, op)
	return ctx, func(id int64, err error, extra ...logrus.Fields) {
		if id != 0 {
			span.SetAttributes(attribute.Int64("user_id", id))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.trace(op, id, start, err, extra...)
	}
}

func (s *Service) trace(op string, id int64, start time.Time, err error, extra ...logrus.Fields) {
	fields := logrus.Fields{
		"op":          op,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if id != 0 {
		fields["user_id"] = id
	}
	for _, e := range extra {
		for k, v := range e {
			fields[k] = v
		}
	}

	if err == nil {
		fields["outcome"] = "ok"
		countOp(op, "ok")
		s.Logger.WithFields(fields).Info("aggregate operation")
		return
	}

	f, _ := AsFault(err)
	outcome := KindInternal.String()
	if f != nil {
		outcome = f.Kind.String()
		if f.Field != "" {
			fields["field"] = f.Field
		}
	}
	fields["outcome"] = outcome
	countOp(op, outcome)

	entry := s.Logger.WithFields(fields)
	if f != nil && f.Kind != KindInternal {
		entry.WithField("reason", f.Message).Warn("aggregate operation rejected")
		return
	}
	cause := err
	if f != nil && f.Err != nil {
		cause = f.Err
	}
	entry.WithError(cause).Error("aggregate operation failed")
}

func validationFault(op string, id int64, err error) *Fault {
	field, msg := validation.First(err)
	return &Fault{Kind: KindValidation, Op: op, ID: id, Field: field, Message: msg, Err: err}
}

func storageFault(op string, id int64, err error) *Fault {
	if errors.Is(err, repo.ErrNotFound) {
		return &Fault{Kind: KindNotFound, Op: op, ID: id, Message: "user not found", Err: err}
	}
	msg := "storage failure"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg = "storage timed out"
	case errors.Is(err, context.Canceled):
		msg = "request cancelled"
	}
	return &Fault{Kind: KindInternal, Op: op, ID: id, Message: msg, Err: err}
}

func idOf(agg *entity.Aggregate) int64 {
	if agg == nil {
		return 0
	}
	return agg.ID
}
