package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/oksasatya/usage-aggregate-service/pkg/helpers"
)

// Classifier is an opaque behavior-class model.
type Classifier interface {
	FeatureNames() []string
	Predict(x []float64) (int, error)
}

// LinearModel is a one-vs-rest linear classifier exported as JSON. The
// predicted class is the one with the highest decision score.
type LinearModel struct {
	Features     []string    `json:"feature_names"`
	Classes      []int       `json:"classes"`
	Coefficients [][]float64 `json:"coefficients"` // one row per class
	Intercepts   []float64   `json:"intercepts"`
}

func (m *LinearModel) FeatureNames() []string { return m.Features }

func (m *LinearModel) Validate() error {
	if len(m.Features) == 0 {
		return errors.New("model: no feature names")
	}
	if len(m.Classes) == 0 {
		return errors.New("model: no classes")
	}
	if len(m.Coefficients) != len(m.Classes) || len(m.Intercepts) != len(m.Classes) {
		return fmt.Errorf("model: %d classes but %d coefficient rows and %d intercepts",
			len(m.Classes), len(m.Coefficients), len(m.Intercepts))
	}
	for i, row := range m.Coefficients {
		if len(row) != len(m.Features) {
			return fmt.Errorf("model: coefficient row %d has %d values, want %d", i, len(row), len(m.Features))
		}
	}
	return nil
}

func (m *LinearModel) Predict(x []float64) (int, error) {
	if len(x) != len(m.Features) {
		return 0, fmt.Errorf("model: got %d features, want %d", len(x), len(m.Features))
	}
	best, bestScore := 0, math.Inf(-1)
	for c, row := range m.Coefficients {
		score := m.Intercepts[c]
		for i, w := range row {
			score += w * x[i]
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return m.Classes[best], nil
}

// ParseModel decodes and validates a LinearModel artifact.
func ParseModel(b []byte) (*LinearModel, error) {
	var m LinearModel
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("model: decode: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadModel reads the artifact from a local path or a gs://bucket/object
// URI. credsPath is only used for GCS; empty means Application Default
// Credentials.
func LoadModel(ctx context.Context, uri, credsPath string) (*LinearModel, error) {
	var (
		b   []byte
		err error
	)
	if strings.HasPrefix(uri, "gs://") {
		b, err = readGCS(ctx, uri, credsPath)
	} else {
		b, err = os.ReadFile(uri)
	}
	if err != nil {
		return nil, fmt.Errorf("model: read %s: %w", uri, err)
	}
	return ParseModel(b)
}

func readGCS(ctx context.Context, uri, credsPath string) ([]byte, error) {
	bucket, object, err := helpers.ParseGSURI(uri)
	if err != nil {
		return nil, err
	}
	client, err := helpers.NewGCSClient(ctx, credsPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()
	return helpers.ReadObject(ctx, client, bucket, object)
}

var _ Classifier = (*LinearModel)(nil)
