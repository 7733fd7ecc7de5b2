package drift

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/events"
	"github.com/aerosuite/platform/pkg/log"
	"github.com/aerosuite/platform/pkg/metrics"
)

var bucketBaselines = []byte("drift_baselines")

// Method selects the statistical distance used for numeric features.
// Categorical features always use chi-square.
type Method string

const (
	MethodPSI       Method = "psi"
	MethodKS        Method = "ks"
	MethodChiSquare Method = "chi-square"
)

// FeatureType declares how a feature's values are compared.
type FeatureType string

const (
	FeatureNumeric     FeatureType = "numeric"
	FeatureCategorical FeatureType = "categorical"
)

// FeatureSchema maps feature names to their types.
type FeatureSchema map[string]FeatureType

// Sample is one observation: feature name to value. Numeric features
// expect float64, categorical expect string.
type Sample map[string]any

// Severity classifies a drift score.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Thresholds are the score cut-offs for severity classification.
type Thresholds struct {
	Low    float64 `json:"low"`
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// DefaultThresholds classifies on the method score.
var DefaultThresholds = Thresholds{Low: 0.1, Medium: 0.2, High: 0.3}

func (t Thresholds) classify(score float64) Severity {
	switch {
	case score >= t.High:
		return SeverityHigh
	case score >= t.Medium:
		return SeverityMedium
	case score >= t.Low:
		return SeverityLow
	default:
		return SeverityNone
	}
}

const histogramBins = 10

// smoothing keeps ratio terms finite when a bin is empty.
const smoothing = 1e-4

// featureBaseline is the stored reference distribution for one feature.
type featureBaseline struct {
	Type       FeatureType        `json:"type"`
	Count      int                `json:"count"`
	Mean       float64            `json:"mean"`
	StdDev     float64            `json:"stdDev"`
	Min        float64            `json:"min"`
	Max        float64            `json:"max"`
	BinEdges   []float64          `json:"binEdges,omitempty"`
	Histogram  []float64          `json:"histogram,omitempty"`  // proportions per bin
	Categories map[string]float64 `json:"categories,omitempty"` // proportions per category
}

// Baseline is the stored reference snapshot for a model.
type Baseline struct {
	ModelID     string                      `json:"modelId"`
	Method      Method                      `json:"method"`
	SampleCount int                         `json:"sampleCount"`
	CreatedAt   time.Time                   `json:"createdAt"`
	Features    map[string]*featureBaseline `json:"features"`
}

// FeatureReport is the per-feature outcome of a drift check.
type FeatureReport struct {
	Score    float64  `json:"score"`
	Severity Severity `json:"severity"`
	Method   Method   `json:"method"`
}

// Report is the outcome of a drift check. Score and Severity reflect the
// worst feature.
type Report struct {
	ModelID    string                   `json:"modelId"`
	Method     Method                   `json:"method"`
	Score      float64                  `json:"score"`
	Severity   Severity                 `json:"severity"`
	PerFeature map[string]FeatureReport `json:"perFeature"`
	CheckedAt  time.Time                `json:"checkedAt"`
}

// Detector creates baselines and checks current traffic against them.
type Detector struct {
	db            *bolt.DB
	bus           *events.Bus
	thresholds    Thresholds
	defaultMethod Method
}

// New creates a detector. bus may be nil; zero thresholds select the
// defaults.
func New(db *bolt.DB, bus *events.Bus, thresholds Thresholds, defaultMethod Method) (*Detector, error) {
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds
	}
	if defaultMethod == "" {
		defaultMethod = MethodPSI
	}
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBaselines)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create drift bucket: %w", err)
	}
	return &Detector{db: db, bus: bus, thresholds: thresholds, defaultMethod: defaultMethod}, nil
}

// CreateBaseline builds and stores the reference distribution for the
// model from the given samples.
func (d *Detector) CreateBaseline(modelID string, samples []Sample, schema FeatureSchema, method Method) (*Baseline, error) {
	if len(samples) == 0 {
		return nil, apperr.Validation("baseline requires at least one sample")
	}
	if len(schema) == 0 {
		return nil, apperr.Validation("baseline requires a feature schema")
	}
	if method == "" {
		method = d.defaultMethod
	}
	switch method {
	case MethodPSI, MethodKS, MethodChiSquare:
	default:
		return nil, apperr.Validation("unknown drift method: %s", method)
	}

	baseline := &Baseline{
		ModelID:     modelID,
		Method:      method,
		SampleCount: len(samples),
		CreatedAt:   time.Now().UTC(),
		Features:    make(map[string]*featureBaseline, len(schema)),
	}
	for name, ftype := range schema {
		fb, err := buildFeature(name, ftype, samples)
		if err != nil {
			return nil, err
		}
		baseline.Features[name] = fb
	}

	data, err := json.Marshal(baseline)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal baseline: %w", err)
	}
	err = d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBaselines).Put([]byte(modelID), data)
	})
	if err != nil {
		return nil, err
	}
	log.WithModelID(modelID).Info().
		Int("samples", len(samples)).Str("method", string(method)).
		Msg("drift baseline created")
	return baseline, nil
}

// GetBaseline loads the stored baseline for the model.
func (d *Detector) GetBaseline(modelID string) (*Baseline, error) {
	var baseline *Baseline
	err := d.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBaselines).Get([]byte(modelID))
		if data == nil {
			return apperr.NotFound("no drift baseline for model %s", modelID)
		}
		baseline = &Baseline{}
		return json.Unmarshal(data, baseline)
	})
	if err != nil {
		return nil, err
	}
	return baseline, nil
}

// DetectDrift scores current samples against the stored baseline and
// classifies the result. Drift at or above low severity is announced on
// the bus.
func (d *Detector) DetectDrift(modelID string, current []Sample) (*Report, error) {
	if len(current) == 0 {
		return nil, apperr.Validation("drift check requires at least one sample")
	}
	baseline, err := d.GetBaseline(modelID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ModelID:    modelID,
		Method:     baseline.Method,
		Severity:   SeverityNone,
		PerFeature: make(map[string]FeatureReport, len(baseline.Features)),
		CheckedAt:  time.Now().UTC(),
	}

	for name, fb := range baseline.Features {
		var score float64
		method := baseline.Method
		if fb.Type == FeatureCategorical {
			method = MethodChiSquare
			score = chiSquareScore(fb.Categories, categoryProportions(name, current))
		} else {
			hist := binSamples(name, current, fb.BinEdges)
			switch baseline.Method {
			case MethodKS:
				score = ksScore(fb.Histogram, hist)
			default:
				score = psiScore(fb.Histogram, hist)
			}
		}

		fr := FeatureReport{Score: score, Severity: d.thresholds.classify(score), Method: method}
		report.PerFeature[name] = fr
		metrics.DriftScore.WithLabelValues(modelID, name).Set(score)
		if score > report.Score {
			report.Score = score
			report.Severity = fr.Severity
		}
	}

	if report.Severity != SeverityNone && d.bus != nil {
		d.bus.Publish(&events.Event{
			Type:     events.EventDriftDetected,
			EntityID: modelID,
			Message:  fmt.Sprintf("drift detected for model %s: %s (score %.4f)", modelID, report.Severity, report.Score),
			Metadata: map[string]string{"severity": string(report.Severity)},
		})
	}
	return report, nil
}

func buildFeature(name string, ftype FeatureType, samples []Sample) (*featureBaseline, error) {
	switch ftype {
	case FeatureCategorical:
		return &featureBaseline{
			Type:       FeatureCategorical,
			Count:      len(samples),
			Categories: categoryProportions(name, samples),
		}, nil
	case FeatureNumeric:
		values := numericValues(name, samples)
		if len(values) == 0 {
			return nil, apperr.Validation("feature %s has no numeric values", name)
		}
		fb := &featureBaseline{Type: FeatureNumeric, Count: len(values)}
		fb.Min, fb.Max = values[0], values[0]
		var sum, sumSquares float64
		for _, v := range values {
			sum += v
			sumSquares += v * v
			if v < fb.Min {
				fb.Min = v
			}
			if v > fb.Max {
				fb.Max = v
			}
		}
		n := float64(len(values))
		fb.Mean = sum / n
		if variance := sumSquares/n - fb.Mean*fb.Mean; variance > 0 {
			fb.StdDev = math.Sqrt(variance)
		}
		fb.BinEdges = binEdges(fb.Min, fb.Max)
		fb.Histogram = binValues(values, fb.BinEdges)
		return fb, nil
	default:
		return nil, apperr.Validation("unknown feature type for %s: %s", name, ftype)
	}
}

// binEdges splits [min,max] into equal-width interior edges. Values
// outside the range clamp into the edge bins at detection time.
func binEdges(min, max float64) []float64 {
	if max <= min {
		max = min + 1
	}
	width := (max - min) / histogramBins
	edges := make([]float64, histogramBins-1)
	for i := range edges {
		edges[i] = min + width*float64(i+1)
	}
	return edges
}

func binIndex(v float64, edges []float64) int {
	for i, edge := range edges {
		if v < edge {
			return i
		}
	}
	return len(edges)
}

func binValues(values []float64, edges []float64) []float64 {
	counts := make([]float64, len(edges)+1)
	for _, v := range values {
		counts[binIndex(v, edges)]++
	}
	n := float64(len(values))
	for i := range counts {
		counts[i] /= n
	}
	return counts
}

func binSamples(feature string, samples []Sample, edges []float64) []float64 {
	return binValues(numericValues(feature, samples), edges)
}

func numericValues(feature string, samples []Sample) []float64 {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		raw, ok := s[feature]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			values = append(values, v)
		case float32:
			values = append(values, float64(v))
		case int:
			values = append(values, float64(v))
		case int64:
			values = append(values, float64(v))
		}
	}
	return values
}

func categoryProportions(feature string, samples []Sample) map[string]float64 {
	counts := make(map[string]float64)
	var n float64
	for _, s := range samples {
		raw, ok := s[feature]
		if !ok {
			continue
		}
		counts[fmt.Sprint(raw)]++
		n++
	}
	if n > 0 {
		for k := range counts {
			counts[k] /= n
		}
	}
	return counts
}

// psiScore is the population stability index between two binned
// distributions of equal shape.
func psiScore(base, current []float64) float64 {
	var psi float64
	for i := range base {
		p := base[i]
		q := 0.0
		if i < len(current) {
			q = current[i]
		}
		if p < smoothing {
			p = smoothing
		}
		if q < smoothing {
			q = smoothing
		}
		psi += (q - p) * math.Log(q/p)
	}
	return psi
}

// ksScore is the Kolmogorov-Smirnov statistic over the binned CDFs.
func ksScore(base, current []float64) float64 {
	var cdfBase, cdfCur, max float64
	for i := range base {
		cdfBase += base[i]
		if i < len(current) {
			cdfCur += current[i]
		}
		if d := math.Abs(cdfBase - cdfCur); d > max {
			max = d
		}
	}
	return max
}

// chiSquareScore is the chi-square distance between category
// proportions, with smoothing for categories unseen in the baseline.
func chiSquareScore(base, current map[string]float64) float64 {
	var score float64
	seen := make(map[string]struct{}, len(base)+len(current))
	for k := range base {
		seen[k] = struct{}{}
	}
	for k := range current {
		seen[k] = struct{}{}
	}
	for k := range seen {
		p := base[k]
		q := current[k]
		if p < smoothing {
			p = smoothing
		}
		score += (q - p) * (q - p) / p
	}
	return score
}
