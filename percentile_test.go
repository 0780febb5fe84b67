package cdnsift

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cdnsift/cdnsift/data"
)

func TestPercentileLinearInterpolation(t *testing.T) {
	values := []float64{15, 20, 35, 40, 50}

	assert.InDelta(t, 29.0, percentile(values, 40), 1e-9)
	assert.InDelta(t, 15.0, percentile(values, 0), 1e-9)
	assert.InDelta(t, 50.0, percentile(values, 100), 1e-9)
	assert.InDelta(t, 35.0, percentile(values, 50), 1e-9)
}

func TestPercentileHundredValues(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i + 1)
	}

	assert.InDelta(t, 99.01, percentile(values, 99), 1e-9)
	assert.InDelta(t, 75.25, percentile(values, 75), 1e-9)
}

func TestPercentileDoesNotMutateInput(t *testing.T) {
	values := []float64{3, 1, 2}
	percentile(values, 50)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestPercentileDegenerateInputs(t *testing.T) {
	assert.Equal(t, 0.0, percentile(nil, 99))
	assert.Equal(t, 42.0, percentile([]float64{42}, 99))
}

func TestBaselineEmptyPopulation(t *testing.T) {
	b := computeBaseline(map[string]*data.SourceStats{})

	assert.Equal(t, 0.0, b.Requests.P99)
	assert.Equal(t, 0.0, b.Bytes.P99)
}
