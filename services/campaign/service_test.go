package campaign

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contestplane/pkg/errutil"
	"contestplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Campaign{}, &Event{}, &Prediction{}, &Participation{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func TestCreateCampaign(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateCampaign(ctx, CreateCampaignParams{Name: "World Cup Bracket"})
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)
	require.Equal(t, CampaignStatusDraft, c.Status)
	require.Equal(t, "CMP-"+c.ID, c.Code)
	require.False(t, c.PointsDistributed)

	got, err := svc.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, c.Name, got.Name)
}

func TestCreateCampaignRequiresName(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateCampaign(context.Background(), CreateCampaignParams{Name: "   "})
	require.Error(t, err)

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusValidationFailed, be.Status())
}

func TestGetCampaignNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetCampaign(context.Background(), "missing")
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestAddEvent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateCampaign(ctx, CreateCampaignParams{Name: "Season Finale"})
	require.NoError(t, err)

	event, err := svc.AddEvent(ctx, AddEventParams{
		CampaignID: c.ID,
		Title:      "Who wins the final",
		Type:       EventTypeChoiceSelection,
		Points:     100,
	})
	require.NoError(t, err)
	require.Equal(t, EventStatusUpcoming, event.Status)
	require.Equal(t, ResultStateUnresolved, event.Result.State())

	events, err := svc.ListEvents(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestAddEventValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateCampaign(ctx, CreateCampaignParams{Name: "Season Finale"})
	require.NoError(t, err)

	_, err = svc.AddEvent(ctx, AddEventParams{CampaignID: c.ID, Title: "Bad", Type: EventType("essay"), Points: 10})
	require.Error(t, err)

	_, err = svc.AddEvent(ctx, AddEventParams{CampaignID: c.ID, Title: "Bad", Type: EventTypeChoiceSelection, Points: 0})
	require.Error(t, err)

	_, err = svc.AddEvent(ctx, AddEventParams{CampaignID: "missing", Title: "Bad", Type: EventTypeChoiceSelection, Points: 10})
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestSubmitPredictionCreatesParticipation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateCampaign(ctx, CreateCampaignParams{Name: "Season Finale"})
	require.NoError(t, err)
	e1, err := svc.AddEvent(ctx, AddEventParams{CampaignID: c.ID, Title: "Winner", Type: EventTypeChoiceSelection, Points: 100})
	require.NoError(t, err)
	e2, err := svc.AddEvent(ctx, AddEventParams{CampaignID: c.ID, Title: "Attendance", Type: EventTypeNumericPrediction, Points: 50})
	require.NoError(t, err)

	p, err := svc.SubmitPrediction(ctx, SubmitPredictionParams{EventID: e1.ID, UserID: "user-1", Value: "team_a"})
	require.NoError(t, err)
	require.Equal(t, c.ID, p.CampaignID)

	_, err = svc.SubmitPrediction(ctx, SubmitPredictionParams{EventID: e2.ID, UserID: "user-1", Value: "1000"})
	require.NoError(t, err)

	parts, err := svc.ListParticipations(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	require.Equal(t, "user-1", parts[0].UserID)
	require.Equal(t, 2, parts[0].PredictionsCount)
	require.False(t, parts[0].PointsAwarded)
}

func TestSubmitPredictionDuplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateCampaign(ctx, CreateCampaignParams{Name: "Season Finale"})
	require.NoError(t, err)
	e, err := svc.AddEvent(ctx, AddEventParams{CampaignID: c.ID, Title: "Winner", Type: EventTypeChoiceSelection, Points: 100})
	require.NoError(t, err)

	_, err = svc.SubmitPrediction(ctx, SubmitPredictionParams{EventID: e.ID, UserID: "user-1", Value: "team_a"})
	require.NoError(t, err)

	_, err = svc.SubmitPrediction(ctx, SubmitPredictionParams{EventID: e.ID, UserID: "user-1", Value: "team_b"})
	require.Error(t, err)
	require.Equal(t, "prediction_exists", errutil.ReasonOf(err))

	parts, err := svc.ListParticipations(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	require.Equal(t, 1, parts[0].PredictionsCount)
}

func TestSubmitPredictionAfterOutcomeRecorded(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateCampaign(ctx, CreateCampaignParams{Name: "Season Finale"})
	require.NoError(t, err)
	e, err := svc.AddEvent(ctx, AddEventParams{CampaignID: c.ID, Title: "Winner", Type: EventTypeChoiceSelection, Points: 100})
	require.NoError(t, err)

	require.NoError(t, svc.db.Model(&Event{}).Where("id = ?", e.ID).
		Updates(map[string]any{"result_recorded": true, "result_outcome": "team_a"}).Error)

	_, err = svc.SubmitPrediction(ctx, SubmitPredictionParams{EventID: e.ID, UserID: "user-1", Value: "team_a"})
	require.Error(t, err)
	require.Equal(t, "event_locked", errutil.ReasonOf(err))
}

func TestSubmitPredictionValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.SubmitPrediction(ctx, SubmitPredictionParams{EventID: "event-1", UserID: "", Value: "x"})
	require.Error(t, err)

	_, err = svc.SubmitPrediction(ctx, SubmitPredictionParams{EventID: "event-1", UserID: "user-1", Value: " "})
	require.Error(t, err)

	_, err = svc.SubmitPrediction(ctx, SubmitPredictionParams{EventID: "missing", UserID: "user-1", Value: "x"})
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}
