package etl

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oksasatya/usage-aggregate-service/internal/application"
)

// Disposition tells the consumer what to do with a delivery.
type Disposition int

const (
	Ack     Disposition = iota
	Reject              // nack without requeue; the message can never succeed
	Requeue             // nack with requeue; a later attempt may succeed
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Reject:
		return "reject"
	default:
		return "requeue"
	}
}

// HandleMessage decodes one queued Row and creates its aggregate. Malformed
// bodies and validation faults are rejected; storage faults are requeued.
func HandleMessage(ctx context.Context, svc Creator, body []byte) (Disposition, int64, error) {
	var row Row
	if err := json.Unmarshal(body, &row); err != nil {
		return Reject, 0, fmt.Errorf("decode message: %w", err)
	}
	agg, err := svc.CreateAggregate(ctx, row.Input)
	if err != nil {
		if application.IsValidation(err) {
			return Reject, 0, fmt.Errorf("line %d: %w", row.Line, err)
		}
		return Requeue, 0, fmt.Errorf("line %d: %w", row.Line, err)
	}
	return Ack, agg.ID, nil
}
