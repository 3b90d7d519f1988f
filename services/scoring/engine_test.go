package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"contestplane/services/campaign"
)

func TestScoreChoiceSelection(t *testing.T) {
	engine := Engine{}
	event := &campaign.Event{
		ID:     "event-1",
		Type:   campaign.EventTypeChoiceSelection,
		Points: 100,
		Result: campaign.Result{Recorded: true, Outcome: "team_a"},
	}

	outcome, err := engine.Score(event, &campaign.Prediction{Value: "team_a"})
	require.NoError(t, err)
	require.True(t, outcome.IsCorrect)
	require.Equal(t, int64(100), outcome.Points)

	outcome, err = engine.Score(event, &campaign.Prediction{Value: "team_b"})
	require.NoError(t, err)
	require.False(t, outcome.IsCorrect)
	require.Equal(t, int64(0), outcome.Points)
}

func TestScoreChoiceIsCaseSensitive(t *testing.T) {
	engine := Engine{}
	event := &campaign.Event{
		Type:   campaign.EventTypeChoiceSelection,
		Points: 10,
		Result: campaign.Result{Recorded: true, Outcome: "Team_A"},
	}

	outcome, err := engine.Score(event, &campaign.Prediction{Value: "team_a"})
	require.NoError(t, err)
	require.False(t, outcome.IsCorrect)
}

func TestScoreNumericExact(t *testing.T) {
	engine := Engine{}
	event := &campaign.Event{
		ID:     "event-1",
		Type:   campaign.EventTypeNumericPrediction,
		Points: 50,
		Result: campaign.Result{Recorded: true, Outcome: "1000"},
	}

	outcome, err := engine.Score(event, &campaign.Prediction{Value: "1000"})
	require.NoError(t, err)
	require.True(t, outcome.IsCorrect)
	require.Equal(t, int64(50), outcome.Points)

	outcome, err = engine.Score(event, &campaign.Prediction{Value: "1001"})
	require.NoError(t, err)
	require.False(t, outcome.IsCorrect)
}

func TestScoreNumericTolerance(t *testing.T) {
	engine := Engine{Tolerance: 5}
	event := &campaign.Event{
		Type:   campaign.EventTypeNumericPrediction,
		Points: 50,
		Result: campaign.Result{Recorded: true, Outcome: "1000"},
	}

	within, err := engine.Score(event, &campaign.Prediction{Value: "995"})
	require.NoError(t, err)
	require.True(t, within.IsCorrect)

	outside, err := engine.Score(event, &campaign.Prediction{Value: "994"})
	require.NoError(t, err)
	require.False(t, outside.IsCorrect)
}

func TestScoreNumericRejectsNonNumeric(t *testing.T) {
	engine := Engine{}
	event := &campaign.Event{
		ID:     "event-1",
		Type:   campaign.EventTypeNumericPrediction,
		Points: 50,
		Result: campaign.Result{Recorded: true, Outcome: "1000"},
	}

	_, err := engine.Score(event, &campaign.Prediction{ID: "pred-1", Value: "a lot"})
	require.Error(t, err)

	event.Result.Outcome = "unknown"
	_, err = engine.Score(event, &campaign.Prediction{ID: "pred-1", Value: "1000"})
	require.Error(t, err)
}

func TestScoreUnsupportedType(t *testing.T) {
	engine := Engine{}
	_, err := engine.Score(&campaign.Event{Type: campaign.EventType("essay")}, &campaign.Prediction{})
	require.Error(t, err)
}
