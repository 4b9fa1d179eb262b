package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
)

const requestTimeout = 3 * time.Second

// AggregateMirror keeps a document copy of each aggregate in an index, keyed
// by user id. It is the document-store view of the relational data.
type AggregateMirror struct {
	es    *elasticsearch.Client
	index string
}

func NewAggregateMirror(es *elasticsearch.Client, index string) *AggregateMirror {
	return &AggregateMirror{es: es, index: index}
}

type aggregateDoc struct {
	UserID       int64                     `json:"user_id"`
	Age          int                       `json:"age"`
	Gender       string                    `json:"gender"`
	UserBehavior string                    `json:"user_behavior"`
	DeviceInfo   *entity.DeviceInformation `json:"device_info,omitempty"`
	UsageStats   *entity.AppUsageStats     `json:"app_usage_stats,omitempty"`
	IndexedAt    string                    `json:"indexed_at"`
}

func (m *AggregateMirror) Index(ctx context.Context, agg *entity.Aggregate) error {
	doc := aggregateDoc{
		UserID:       agg.ID,
		Age:          agg.Age,
		Gender:       agg.Gender,
		UserBehavior: agg.UserBehavior,
		DeviceInfo:   agg.Device,
		UsageStats:   agg.Usage,
		IndexedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      m.index,
		DocumentID: strconv.FormatInt(agg.ID, 10),
		Body:       bytes.NewReader(b),
		Refresh:    "false",
	}
	return m.do(ctx, req, false)
}

func (m *AggregateMirror) Remove(ctx context.Context, id int64) error {
	req := esapi.DeleteRequest{
		Index:      m.index,
		DocumentID: strconv.FormatInt(id, 10),
	}
	return m.do(ctx, req, true)
}

func (m *AggregateMirror) do(ctx context.Context, req esapi.Request, allowMissing bool) error {
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := req.Do(c, m.es)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		if allowMissing && res.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("elasticsearch: %s", res.Status())
	}
	return nil
}
