package scoring

import (
	"fmt"
	"math"
	"strconv"

	"contestplane/pkg/config"
	"contestplane/services/campaign"

	"go.uber.org/fx"
)

// Outcome is the result of scoring one prediction against one approved event.
type Outcome struct {
	IsCorrect bool
	Points    int64
}

// Engine maps (event, prediction, recorded outcome) to correctness and
// points. It holds no state beyond the numeric tolerance and performs no I/O,
// so it is safe to call concurrently and repeatedly.
type Engine struct {
	// Tolerance is the maximum absolute delta between a numeric prediction
	// and the outcome that still scores as correct. 0 means exact match.
	Tolerance float64
}

func NewEngine(cfg *config.Config) Engine {
	return Engine{Tolerance: cfg.Scoring.NumericTolerance}
}

func (e Engine) Score(event *campaign.Event, prediction *campaign.Prediction) (Outcome, error) {
	switch event.Type {
	case campaign.EventTypeChoiceSelection:
		return e.award(event, prediction.Value == event.Result.Outcome), nil

	case campaign.EventTypeNumericPrediction:
		predicted, err := strconv.ParseFloat(prediction.Value, 64)
		if err != nil {
			return Outcome{}, fmt.Errorf("prediction %s is not numeric: %w", prediction.ID, err)
		}
		outcome, err := strconv.ParseFloat(event.Result.Outcome, 64)
		if err != nil {
			return Outcome{}, fmt.Errorf("event %s outcome is not numeric: %w", event.ID, err)
		}
		return e.award(event, math.Abs(predicted-outcome) <= e.Tolerance), nil

	default:
		return Outcome{}, fmt.Errorf("unsupported event type %q", event.Type)
	}
}

func (e Engine) award(event *campaign.Event, correct bool) Outcome {
	if !correct {
		return Outcome{}
	}
	return Outcome{IsCorrect: true, Points: event.Points}
}

var Module = fx.Module("scoring.engine",
	fx.Provide(NewEngine),
)
