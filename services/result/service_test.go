package result

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contestplane/pkg/errutil"
	"contestplane/services/campaign"
	"contestplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &campaign.Event{})
	svc := NewService(ServiceParams{DB: db})

	require.NoError(t, db.Create(&campaign.Event{
		ID:         "event-1",
		CampaignID: "campaign-1",
		Title:      "Final score",
		Type:       campaign.EventTypeChoiceSelection,
		Points:     100,
		Status:     campaign.EventStatusUpcoming,
	}).Error)

	return svc
}

func requireReason(t *testing.T, err error, status errutil.CoreStatus, reason string) {
	t.Helper()

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, status, be.Status())
	require.Equal(t, reason, errutil.ReasonOf(err))
}

func TestOutcomeLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	event, err := svc.RecordOutcome(ctx, "event-1", "team_a", "final whistle", "admin-1")
	require.NoError(t, err)
	require.Equal(t, campaign.ResultStateRecorded, event.Result.State())
	require.Equal(t, "team_a", event.Result.Outcome)
	require.Equal(t, campaign.EventStatusCompleted, event.Status)

	event, err = svc.Verify(ctx, "event-1", "moderator-1")
	require.NoError(t, err)
	require.Equal(t, campaign.ResultStateVerified, event.Result.State())
	require.Equal(t, "moderator-1", event.Result.VerifiedBy)
	require.NotNil(t, event.Result.VerifiedAt)

	event, err = svc.Approve(ctx, "event-1", "admin-2")
	require.NoError(t, err)
	require.Equal(t, campaign.ResultStateApproved, event.Result.State())
	require.Equal(t, "admin-2", event.Result.ApprovedBy)
	require.Equal(t, campaign.EventStatusLocked, event.Status)
}

func TestRecordOutcomeRequiresValue(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.RecordOutcome(context.Background(), "event-1", "  ", "", "admin-1")
	require.Error(t, err)

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusValidationFailed, be.Status())
}

func TestReRecordClearsVerification(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordOutcome(ctx, "event-1", "team_a", "", "admin-1")
	require.NoError(t, err)
	_, err = svc.Verify(ctx, "event-1", "moderator-1")
	require.NoError(t, err)

	event, err := svc.RecordOutcome(ctx, "event-1", "team_b", "correction", "admin-1")
	require.NoError(t, err)
	require.Equal(t, campaign.ResultStateRecorded, event.Result.State())
	require.Equal(t, "team_b", event.Result.Outcome)
	require.False(t, event.Result.Verified)
}

func TestVerifyRequiresRecordedOutcome(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Verify(context.Background(), "event-1", "moderator-1")
	requireReason(t, err, errutil.StatusUnprocessableEntity, ReasonOutcomeNotRecorded)
}

func TestVerifyTwiceConflicts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordOutcome(ctx, "event-1", "team_a", "", "admin-1")
	require.NoError(t, err)
	_, err = svc.Verify(ctx, "event-1", "moderator-1")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, "event-1", "moderator-2")
	requireReason(t, err, errutil.StatusConflict, ReasonAlreadyVerified)
}

func TestApproveRequiresVerification(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordOutcome(ctx, "event-1", "team_a", "", "admin-1")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, "event-1", "admin-2")
	requireReason(t, err, errutil.StatusUnprocessableEntity, ReasonNotVerified)
}

func TestApprovedOutcomeIsImmutable(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordOutcome(ctx, "event-1", "team_a", "", "admin-1")
	require.NoError(t, err)
	_, err = svc.Verify(ctx, "event-1", "moderator-1")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, "event-1", "admin-2")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, "event-1", "admin-2")
	requireReason(t, err, errutil.StatusConflict, ReasonAlreadyApproved)

	_, err = svc.Verify(ctx, "event-1", "moderator-1")
	requireReason(t, err, errutil.StatusConflict, ReasonEventLocked)

	_, err = svc.RecordOutcome(ctx, "event-1", "team_b", "", "admin-1")
	requireReason(t, err, errutil.StatusConflict, ReasonEventLocked)
}

func TestTransitionUnknownEvent(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.RecordOutcome(context.Background(), "missing", "team_a", "", "admin-1")
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}
