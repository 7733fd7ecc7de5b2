package drift

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/aerosuite/platform/pkg/apperr"
)

func newTestDetector(t *testing.T, method Method) *Detector {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "drift.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	d, err := New(db, nil, Thresholds{}, method)
	require.NoError(t, err)
	return d
}

func normalSamples(rng *rand.Rand, n int, mean, stddev float64) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{"pressure": rng.NormFloat64()*stddev + mean}
	}
	return out
}

func TestCreateBaselineValidation(t *testing.T) {
	d := newTestDetector(t, MethodPSI)
	schema := FeatureSchema{"pressure": FeatureNumeric}

	_, err := d.CreateBaseline("m", nil, schema, MethodPSI)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = d.CreateBaseline("m", []Sample{{"pressure": 1.0}}, nil, MethodPSI)
	require.Error(t, err)

	_, err = d.CreateBaseline("m", []Sample{{"pressure": 1.0}}, schema, Method("wavelet"))
	require.Error(t, err)
}

func TestDetectWithoutBaseline(t *testing.T) {
	d := newTestDetector(t, MethodPSI)

	_, err := d.DetectDrift("ghost", []Sample{{"pressure": 1.0}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestNoDriftOnSameDistribution(t *testing.T) {
	d := newTestDetector(t, MethodPSI)
	rng := rand.New(rand.NewSource(1))
	schema := FeatureSchema{"pressure": FeatureNumeric}

	_, err := d.CreateBaseline("m", normalSamples(rng, 2000, 0, 1), schema, MethodPSI)
	require.NoError(t, err)

	report, err := d.DetectDrift("m", normalSamples(rng, 2000, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, SeverityNone, report.Severity)
	assert.Less(t, report.Score, 0.1)
}

// A 0.7 sigma mean shift on a unit normal must classify as high drift
// under the population stability index.
func TestMeanShiftIsHighDriftUnderPSI(t *testing.T) {
	d := newTestDetector(t, MethodPSI)
	rng := rand.New(rand.NewSource(1))
	schema := FeatureSchema{"pressure": FeatureNumeric}

	_, err := d.CreateBaseline("m", normalSamples(rng, 2000, 0, 1), schema, MethodPSI)
	require.NoError(t, err)

	report, err := d.DetectDrift("m", normalSamples(rng, 2000, 0.7, 1))
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, report.Severity)
	assert.Equal(t, MethodPSI, report.Method)
	assert.GreaterOrEqual(t, report.PerFeature["pressure"].Score, 0.3)
}

func TestMeanShiftDetectedUnderKS(t *testing.T) {
	d := newTestDetector(t, MethodKS)
	rng := rand.New(rand.NewSource(1))
	schema := FeatureSchema{"pressure": FeatureNumeric}

	_, err := d.CreateBaseline("m", normalSamples(rng, 2000, 0, 1), schema, MethodKS)
	require.NoError(t, err)

	report, err := d.DetectDrift("m", normalSamples(rng, 2000, 0.7, 1))
	require.NoError(t, err)
	assert.NotEqual(t, SeverityNone, report.Severity)
	assert.Greater(t, report.Score, 0.1)
}

func TestCategoricalChiSquare(t *testing.T) {
	d := newTestDetector(t, MethodPSI)
	schema := FeatureSchema{"line": FeatureCategorical}

	base := make([]Sample, 0, 300)
	for i := 0; i < 100; i++ {
		base = append(base, Sample{"line": "a"}, Sample{"line": "b"}, Sample{"line": "c"})
	}
	_, err := d.CreateBaseline("m", base, schema, MethodPSI)
	require.NoError(t, err)

	// Same mix: no drift
	report, err := d.DetectDrift("m", base)
	require.NoError(t, err)
	assert.Equal(t, SeverityNone, report.Severity)

	// Collapsed onto one category: drift, scored with chi-square
	skewed := make([]Sample, 0, 300)
	for i := 0; i < 300; i++ {
		skewed = append(skewed, Sample{"line": "a"})
	}
	report, err = d.DetectDrift("m", skewed)
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, report.Severity)
	assert.Equal(t, MethodChiSquare, report.PerFeature["line"].Method)
}

func TestMixedSchema(t *testing.T) {
	d := newTestDetector(t, MethodPSI)
	rng := rand.New(rand.NewSource(7))
	schema := FeatureSchema{"pressure": FeatureNumeric, "line": FeatureCategorical}

	base := make([]Sample, 0, 1000)
	for i := 0; i < 1000; i++ {
		line := "a"
		if i%2 == 0 {
			line = "b"
		}
		base = append(base, Sample{"pressure": rng.NormFloat64(), "line": line})
	}
	baseline, err := d.CreateBaseline("m", base, schema, MethodPSI)
	require.NoError(t, err)
	assert.Len(t, baseline.Features, 2)

	report, err := d.DetectDrift("m", base)
	require.NoError(t, err)
	assert.Len(t, report.PerFeature, 2)
	assert.Equal(t, SeverityNone, report.Severity)
}

func TestBaselinePersistsAcrossDetectors(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "drift.db"), 0600, nil)
	require.NoError(t, err)
	defer db.Close()

	d1, err := New(db, nil, Thresholds{}, MethodPSI)
	require.NoError(t, err)
	_, err = d1.CreateBaseline("m", []Sample{{"pressure": 1.0}, {"pressure": 2.0}}, FeatureSchema{"pressure": FeatureNumeric}, MethodPSI)
	require.NoError(t, err)

	d2, err := New(db, nil, Thresholds{}, MethodPSI)
	require.NoError(t, err)
	baseline, err := d2.GetBaseline("m")
	require.NoError(t, err)
	assert.Equal(t, 2, baseline.SampleCount)
}
