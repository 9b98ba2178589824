package metrics

import (
	"context"
	"fmt"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// Metric ids of the accuracy metrics.
const (
	AccuracyID        = "model_accuracy"
	PrecisionRecallID = "precision_recall"
)

// AccuracyConfig holds the inputs of model_accuracy.
type AccuracyConfig struct {
	columns `yaml:",inline"`
	// Method selects the sub-metric copied to primary_value.
	Method string `yaml:"method" validate:"oneof=auc accuracy precision recall"`
	// Threshold is the decision threshold for the confusion-based metrics.
	Threshold float64 `yaml:"threshold" validate:"gte=0,lte=1"`
}

// DefaultAccuracyConfig returns the model_accuracy defaults.
func DefaultAccuracyConfig() AccuracyConfig {
	return AccuracyConfig{columns: defaultColumns(), Method: "auc", Threshold: 0.5}
}

// Accuracy computes ROC AUC together with accuracy, precision and recall at
// the configured threshold. The sub-metric named by the method input is
// also exposed as primary_value so a single color field can follow it.
//
// The result holds auc_value, accuracy_value, precision_value,
// recall_value, primary_value, confusion_matrix and roc_chart.
func Accuracy(ctx context.Context, data *domain.Dataset, in domain.Inputs) (domain.MetricResult, error) {
	cfg := DefaultAccuracyConfig()
	if err := decodeInputs(in, &cfg); err != nil {
		return nil, err
	}
	actual, predicted, err := cfg.load(data)
	if err != nil {
		return nil, err
	}
	if len(actual) == 0 {
		return nil, fmt.Errorf("%w: model_accuracy needs at least one row", ErrInsufficientData)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	roc := rocCurve(actual, predicted)
	auc := trapezoid(roc.Y, roc.X)

	cm := confusionAt(actual, predicted, cfg.Threshold)
	total := cm.TP + cm.TN + cm.FP + cm.FN
	values := map[string]float64{
		"auc":       auc,
		"accuracy":  float64(cm.TP+cm.TN) / float64(max(total, 1)),
		"precision": cm.precision(),
		"recall":    cm.recall(),
	}

	return domain.MetricResult{
		"auc_value":        round6(values["auc"]),
		"accuracy_value":   round6(values["accuracy"]),
		"precision_value":  round6(values["precision"]),
		"recall_value":     round6(values["recall"]),
		"primary_value":    round6(values[cfg.Method]),
		"confusion_matrix": cm.asMap(),
		"roc_chart":        roc,
	}, nil
}

// rocCurve walks rows by descending score, adding one point per row.
// X is the false positive rate, Y the true positive rate.
func rocCurve(actual, predicted []float64) domain.Series {
	var pos float64
	for _, a := range actual {
		pos += a
	}
	neg := float64(len(actual)) - pos
	pos, neg = max(pos, 1), max(neg, 1)

	roc := domain.Series{
		X: make([]float64, 1, len(actual)+1),
		Y: make([]float64, 1, len(actual)+1),
	}
	var tp, fp float64
	for _, row := range rankDescending(predicted) {
		if actual[row] == 1 {
			tp++
		} else {
			fp++
		}
		roc.X = append(roc.X, fp/neg)
		roc.Y = append(roc.Y, tp/pos)
	}
	return roc
}

// PrecisionRecallConfig holds the inputs of precision_recall.
type PrecisionRecallConfig struct {
	columns   `yaml:",inline"`
	Threshold float64 `yaml:"threshold" validate:"gte=0,lte=1"`
}

// DefaultPrecisionRecallConfig returns the precision_recall defaults.
func DefaultPrecisionRecallConfig() PrecisionRecallConfig {
	return PrecisionRecallConfig{columns: defaultColumns(), Threshold: 0.5}
}

// PrecisionRecall computes precision, recall and F1 at a decision threshold.
func PrecisionRecall(ctx context.Context, data *domain.Dataset, in domain.Inputs) (domain.MetricResult, error) {
	cfg := DefaultPrecisionRecallConfig()
	if err := decodeInputs(in, &cfg); err != nil {
		return nil, err
	}
	actual, predicted, err := cfg.load(data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cm := confusionAt(actual, predicted, cfg.Threshold)
	p, r := cm.precision(), cm.recall()
	f1 := 2 * p * r / max(p+r, 1e-9)

	return domain.MetricResult{
		"precision_value":  round6(p),
		"recall_value":     round6(r),
		"f1_value":         round6(f1),
		"confusion_matrix": cm.asMap(),
	}, nil
}

// RegisterAccuracy registers model_accuracy and precision_recall.
func RegisterAccuracy(r ports.Registrar) error {
	if err := r.Register(AccuracyID, Accuracy); err != nil {
		return err
	}
	return r.Register(PrecisionRecallID, PrecisionRecall)
}
