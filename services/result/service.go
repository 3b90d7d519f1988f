package result

import (
	"context"
	"strings"
	"time"

	"contestplane/pkg/db/option"
	"contestplane/pkg/errutil"
	"contestplane/pkg/repository"
	"contestplane/services/campaign"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reason codes surfaced on state-machine violations.
const (
	ReasonEventLocked        = "event_locked"
	ReasonOutcomeNotRecorded = "outcome_not_recorded"
	ReasonAlreadyVerified    = "already_verified"
	ReasonNotVerified        = "not_verified"
	ReasonAlreadyApproved    = "already_approved"
)

// Service drives each event's outcome through
// unresolved -> recorded -> verified -> approved. Approved is terminal: the
// outcome is immutable from then on.
type Service struct {
	db     *gorm.DB
	events repository.Repository[campaign.Event]
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		events: repository.ProvideStore[campaign.Event](p.DB),
	}
}

// RecordOutcome stores or replaces the raw outcome for an event. Re-recording
// drops any verification already granted so the result is re-reviewed.
func (s *Service) RecordOutcome(ctx context.Context, eventID, outcome, notes, actorID string) (*campaign.Event, error) {
	if strings.TrimSpace(outcome) == "" {
		return nil, errutil.ValidationFailed("outcome is required", nil)
	}

	return s.transition(ctx, eventID, func(event *campaign.Event) (map[string]any, error) {
		if event.Result.Approved {
			return nil, errutil.Conflict("event result is approved and locked", nil,
				errutil.WithReason(ReasonEventLocked),
				errutil.WithDetails(errutil.Detail{Field: "event_id", Message: event.ID}))
		}

		zap.L().Info("recording event outcome",
			zap.String("event_id", event.ID),
			zap.String("actor", actorID),
		)

		return map[string]any{
			"result_recorded":    true,
			"result_outcome":     outcome,
			"result_notes":       notes,
			"result_verified":    false,
			"result_verified_at": nil,
			"result_verified_by": "",
			"result_approved":    false,
			"result_approved_at": nil,
			"result_approved_by": "",
			"status":             campaign.EventStatusCompleted,
			"updated_at":         time.Now(),
		}, nil
	})
}

// Verify marks a recorded outcome as checked by an operator.
func (s *Service) Verify(ctx context.Context, eventID, actorID string) (*campaign.Event, error) {
	return s.transition(ctx, eventID, func(event *campaign.Event) (map[string]any, error) {
		if event.Result.Approved {
			return nil, errutil.Conflict("event result is approved and locked", nil,
				errutil.WithReason(ReasonEventLocked),
				errutil.WithDetails(errutil.Detail{Field: "event_id", Message: event.ID}))
		}
		if !event.Result.Recorded {
			return nil, errutil.UnprocessableEntity("no outcome recorded for event", nil,
				errutil.WithReason(ReasonOutcomeNotRecorded),
				errutil.WithDetails(errutil.Detail{Field: "event_id", Message: event.ID}))
		}
		if event.Result.Verified {
			return nil, errutil.Conflict("event result already verified", nil,
				errutil.WithReason(ReasonAlreadyVerified),
				errutil.WithDetails(errutil.Detail{Field: "event_id", Message: event.ID}))
		}

		return map[string]any{
			"result_verified":    true,
			"result_verified_at": time.Now(),
			"result_verified_by": actorID,
			"updated_at":         time.Now(),
		}, nil
	})
}

// Approve makes a verified outcome final. The event no longer accepts any
// result mutation afterwards.
func (s *Service) Approve(ctx context.Context, eventID, actorID string) (*campaign.Event, error) {
	return s.transition(ctx, eventID, func(event *campaign.Event) (map[string]any, error) {
		if event.Result.Approved {
			return nil, errutil.Conflict("event result already approved", nil,
				errutil.WithReason(ReasonAlreadyApproved),
				errutil.WithDetails(errutil.Detail{Field: "event_id", Message: event.ID}))
		}
		if !event.Result.Verified {
			return nil, errutil.UnprocessableEntity("event result is not verified", nil,
				errutil.WithReason(ReasonNotVerified),
				errutil.WithDetails(errutil.Detail{Field: "event_id", Message: event.ID}))
		}

		zap.L().Info("approving event result",
			zap.String("event_id", event.ID),
			zap.String("actor", actorID),
		)

		return map[string]any{
			"result_approved":    true,
			"result_approved_at": time.Now(),
			"result_approved_by": actorID,
			"status":             campaign.EventStatusLocked,
			"updated_at":         time.Now(),
		}, nil
	})
}

func (s *Service) transition(ctx context.Context, eventID string, fn func(*campaign.Event) (map[string]any, error)) (*campaign.Event, error) {
	var out *campaign.Event
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)
		eventTx := s.events.WithTrx(tx)

		event, err := eventTx.FindOne(ctx, &campaign.Event{ID: eventID})
		if err != nil {
			return err
		}
		if event == nil {
			return errutil.NotFound("event not found", nil,
				errutil.WithDetails(errutil.Detail{Field: "event_id", Message: eventID}))
		}

		updates, err := fn(event)
		if err != nil {
			return err
		}

		if err := eventTx.Update(ctx, event.ID, updates); err != nil {
			return err
		}

		out, err = eventTx.FindOne(ctx, &campaign.Event{ID: eventID})
		return err
	}); err != nil {
		return nil, err
	}

	return out, nil
}

var Module = fx.Module("result.service",
	fx.Provide(NewService),
)
