package ocr

import (
	"context"
	"fmt"
)

// RecognizeAll runs every input through engine. If the engine supports batch
// operation it is used; otherwise calls are executed sequentially and the
// first error stops the run.
func RecognizeAll(ctx context.Context, engine Engine, inputs []Input) ([]Result, error) {
	if b, ok := engine.(BatchEngine); ok {
		return b.RecognizeBatch(ctx, inputs)
	}
	results := make([]Result, 0, len(inputs))
	for _, in := range inputs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		res, err := engine.Recognize(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// MeanConfidence averages word confidences, ignoring empty tokens. It returns
// zero when no word carries a confidence.
func MeanConfidence(words []TextWord) float64 {
	var sum float64
	var n int
	for _, w := range words {
		if w.Text == "" || w.Confidence <= 0 {
			continue
		}
		sum += w.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
