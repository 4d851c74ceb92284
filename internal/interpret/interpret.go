// Package interpret maps raw classifier output to a labelled result.
package interpret

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/Brownie44l1/xray-api/internal/model"
)

// BinaryThreshold is the score at or above which the positive label is chosen.
const BinaryThreshold = 0.5

// ErrInterpretation wraps every shape or label mismatch.
var ErrInterpretation = errors.New("cannot interpret model output")

// LabelSet is the ordered list of class names the model was trained on.
type LabelSet []string

// DefaultLabels is the binary chest X-ray label set.
var DefaultLabels = LabelSet{"Normal", "Pneumonia"}

// Result is one prediction.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Interpret picks a label from out.
//
// A trailing dimension of 1 is a sigmoid score: labels[1] when the score is at
// least BinaryThreshold, labels[0] otherwise. The raw score is reported as the
// confidence in both cases. Any wider trailing dimension is treated as one
// score per label and the first maximum wins.
func Interpret(out model.Tensor, labels LabelSet) (Result, error) {
	if err := out.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInterpretation, err)
	}

	rank := out.Rank()
	if rank < 1 || rank > 2 {
		return Result{}, fmt.Errorf("%w: unexpected output rank %d (shape %v)", ErrInterpretation, rank, out.Shape)
	}
	if out.Shape[0] != 1 {
		return Result{}, fmt.Errorf("%w: expected a batch of 1, got shape %v", ErrInterpretation, out.Shape)
	}

	classes := out.Shape[rank-1]
	switch {
	case classes == 0:
		return Result{}, fmt.Errorf("%w: empty output (shape %v)", ErrInterpretation, out.Shape)
	case classes == 1:
		return binary(out.Data[0], labels)
	default:
		return categorical(out.Data, labels)
	}
}

func binary(score float32, labels LabelSet) (Result, error) {
	if len(labels) < 2 {
		return Result{}, fmt.Errorf("%w: binary output needs 2 labels, have %d", ErrInterpretation, len(labels))
	}

	label := labels[0]
	if score >= BinaryThreshold {
		label = labels[1]
	}
	return result(label, score)
}

func categorical(scores []float32, labels LabelSet) (Result, error) {
	if len(labels) != len(scores) {
		return Result{}, fmt.Errorf("%w: model returned %d scores for %d labels", ErrInterpretation, len(scores), len(labels))
	}

	best := Argmax(scores)
	return result(labels[best], scores[best])
}

// Argmax returns the index of the first maximum. NaN never wins.
func Argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] || math.IsNaN(float64(values[best])) {
			best = i
		}
	}
	return best
}

func result(label string, score float32) (Result, error) {
	confidence := widen(score)
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return Result{}, fmt.Errorf("%w: confidence %v outside [0,1]", ErrInterpretation, confidence)
	}
	return Result{Label: label, Confidence: confidence}, nil
}

// widen converts through the shortest decimal form so a float32 0.1 reads as
// 0.1 rather than 0.10000000149011612.
func widen(v float32) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
	if err != nil {
		return float64(v)
	}
	return f
}
