package etl

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/oksasatya/usage-aggregate-service/internal/application"
	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
	"github.com/oksasatya/usage-aggregate-service/internal/testutil"
)

func TestHandleMessage(t *testing.T) {
	good, _ := json.Marshal(Row{Line: 2, Input: testutil.Input(1)})

	tests := []struct {
		name    string
		body    []byte
		err     error
		want    Disposition
		wantErr bool
	}{
		{"created", good, nil, Ack, false},
		{"malformed body", []byte(`{"line":`), nil, Reject, true},
		{"validation fault", good, &application.Fault{Kind: application.KindValidation, Op: application.OpCreate}, Reject, true},
		{"storage fault", good, &application.Fault{Kind: application.KindInternal, Op: application.OpCreate, Err: errors.New("down")}, Requeue, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := creatorFunc(func(context.Context, entity.AggregateInput) (*entity.Aggregate, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return &entity.Aggregate{User: entity.User{ID: 11}}, nil
			})
			disp, id, err := HandleMessage(context.Background(), svc, tt.body)
			if disp != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, disp)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want == Ack && id != 11 {
				t.Fatalf("expected id 11, got %d", id)
			}
		})
	}
}
