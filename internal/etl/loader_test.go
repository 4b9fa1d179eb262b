package etl

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/oksasatya/usage-aggregate-service/internal/application"
	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
	"github.com/oksasatya/usage-aggregate-service/internal/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (p *recordingPublisher) PublishJSON(_ context.Context, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.bodies = append(p.bodies, b)
	p.mu.Unlock()
	return nil
}

type creatorFunc func(ctx context.Context, in entity.AggregateInput) (*entity.Aggregate, error)

func (f creatorFunc) CreateAggregate(ctx context.Context, in entity.AggregateInput) (*entity.Aggregate, error) {
	return f(ctx, in)
}

func sampleRows(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{Line: i + 2, SourceID: "src", Input: testutil.Input(i)}
	}
	return rows
}

func TestLoad_QueueSinkPublishesEveryRow(t *testing.T) {
	pub := &recordingPublisher{}
	res, err := Load(context.Background(), sampleRows(10), QueueSink{Pub: pub}, 3, testutil.Logger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Sent != 10 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(pub.bodies) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(pub.bodies))
	}

	var row Row
	if err := json.Unmarshal(pub.bodies[0], &row); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if row.Input.Device.OperatingSystem != "Android" {
		t.Fatalf("unexpected message: %+v", row)
	}
}

func TestLoad_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64
	release := make(chan struct{})
	creator := creatorFunc(func(ctx context.Context, in entity.AggregateInput) (*entity.Aggregate, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return &entity.Aggregate{}, nil
	})

	done := make(chan Result)
	go func() {
		res, _ := Load(context.Background(), sampleRows(12), ServiceSink{Svc: creator}, 4, testutil.Logger())
		done <- res
	}()
	close(release)
	res := <-done

	if res.Sent != 12 {
		t.Fatalf("expected 12 sent, got %+v", res)
	}
	if peak.Load() > 4 {
		t.Fatalf("expected at most 4 in flight, saw %d", peak.Load())
	}
}

func TestLoad_CountsFailuresWithoutStopping(t *testing.T) {
	var calls atomic.Int64
	creator := creatorFunc(func(ctx context.Context, in entity.AggregateInput) (*entity.Aggregate, error) {
		switch calls.Add(1) {
		case 2:
			return nil, &application.Fault{Kind: application.KindValidation, Op: application.OpCreate, Field: "age"}
		case 3:
			return nil, errors.New("storage down")
		}
		return &entity.Aggregate{}, nil
	})

	res, err := Load(context.Background(), sampleRows(5), ServiceSink{Svc: creator}, 1, testutil.Logger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Sent != 3 || res.Failed != 2 || res.Rejected != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLoad_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, sampleRows(3), QueueSink{Pub: &recordingPublisher{}}, 2, testutil.Logger())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLoad_DirectIntoSQLite(t *testing.T) {
	svc := application.NewService(testutil.SQLiteStore(t), nil, testutil.Logger())
	rows := sampleRows(6)
	rows[3].Input.Gender = "" // rejected by validation

	res, err := Load(context.Background(), rows, ServiceSink{Svc: svc}, 3, testutil.Logger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Sent != 5 || res.Rejected != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	list, err := svc.ListAggregates(context.Background(), application.ListInput{Limit: 100})
	if err != nil {
		t.Fatalf("ListAggregates: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("expected 5 stored aggregates, got %d", len(list))
	}
}
