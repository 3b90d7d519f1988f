package distribution

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"contestplane/pkg/config"
	"contestplane/pkg/db/option"
	"contestplane/pkg/errutil"
	"contestplane/pkg/repository"
	"contestplane/services/campaign"
	"contestplane/services/ledger"
	"contestplane/services/scoring"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Reason codes surfaced by Distribute and CanDistribute.
const (
	ReasonCampaignNotFound       = "campaign_not_found"
	ReasonAlreadyDistributed     = "already_distributed"
	ReasonDistributionInProgress = "distribution_in_progress"
	ReasonEventsPendingApproval  = "events_pending_approval"
)

// Service fans campaign scoring out across all participants and commits the
// resulting points exactly once per campaign.
//
// The campaign row carries two guards: distribution_in_progress is the claim
// taken before any work starts, so a second concurrent call fails fast;
// points_awarded on each participation is the per-user idempotency key, so a
// retried run only credits users the previous run missed.
type Service struct {
	db      *gorm.DB
	engine  scoring.Engine
	ledger  *ledger.Service
	workers int

	campaigns      repository.Repository[campaign.Campaign]
	events         repository.Repository[campaign.Event]
	predictions    repository.Repository[campaign.Prediction]
	participations repository.Repository[campaign.Participation]
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Config *config.Config
	Engine scoring.Engine
	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	workers := p.Config.Distribution.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Service{
		db:      p.DB,
		engine:  p.Engine,
		ledger:  p.Ledger,
		workers: workers,

		campaigns:      repository.ProvideStore[campaign.Campaign](p.DB),
		events:         repository.ProvideStore[campaign.Event](p.DB),
		predictions:    repository.ProvideStore[campaign.Prediction](p.DB),
		participations: repository.ProvideStore[campaign.Participation](p.DB),
	}
}

// UserError is one participant's failure during fan-out, collected rather
// than thrown so the remaining participants still get credited.
type UserError struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type Result struct {
	Success                bool        `json:"success"`
	UsersUpdated           int64       `json:"users_updated"`
	TotalPointsDistributed int64       `json:"total_points_distributed"`
	Errors                 []UserError `json:"errors,omitempty"`
}

type Precheck struct {
	CanDistribute bool   `json:"can_distribute"`
	Reason        string `json:"reason,omitempty"`
}

// Distribute scores every pending participation of the campaign and commits
// the points through the ledger. Precondition failures abort the whole call
// with no write; per-user failures are collected in Result.Errors and leave
// the campaign unflagged so a retry picks up the remainder.
func (s *Service) Distribute(ctx context.Context, campaignID, actorID string) (*Result, error) {
	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("campaign_id", campaignID),
		zap.String("actor", actorID),
	)

	if err := s.claim(ctx, campaignID); err != nil {
		return nil, err
	}

	// The claim must not outlive this call, even when ctx is already
	// cancelled. A successful flip clears it together with the flag.
	claimed := true
	releaseCtx := context.WithoutCancel(ctx)
	defer func() {
		if claimed {
			s.release(releaseCtx, campaignID)
		}
	}()

	events, err := s.events.Find(ctx, &campaign.Event{CampaignID: campaignID})
	if err != nil {
		return nil, err
	}

	eventByID := make(map[string]*campaign.Event, len(events))
	var unapproved []errutil.Detail
	for _, ev := range events {
		if !ev.Result.Approved {
			unapproved = append(unapproved, errutil.Detail{Field: "event_id", Message: ev.ID})
			continue
		}
		eventByID[ev.ID] = ev
	}
	if len(unapproved) > 0 {
		return nil, errutil.UnprocessableEntity("not all events are approved", nil,
			errutil.WithReason(ReasonEventsPendingApproval),
			errutil.WithDetails(unapproved...))
	}

	predictions, err := s.predictions.Find(ctx, &campaign.Prediction{CampaignID: campaignID})
	if err != nil {
		return nil, err
	}
	predictionsByUser := make(map[string][]*campaign.Prediction)
	for _, p := range predictions {
		predictionsByUser[p.UserID] = append(predictionsByUser[p.UserID], p)
	}

	var pending []*campaign.Participation
	if err := s.db.WithContext(ctx).
		Where("campaign_id = ? AND points_awarded = ?", campaignID, false).
		Find(&pending).Error; err != nil {
		return nil, err
	}

	zapLog.Info("starting points distribution",
		zap.Int("events", len(eventByID)),
		zap.Int("pending_participations", len(pending)),
	)

	var (
		mu          sync.Mutex
		userErrors  []UserError
		usersDone   int64
		pointsTotal int64
	)

	wg := errgroup.Group{}
	wg.SetLimit(s.workers)
	for _, part := range pending {
		part := part
		wg.Go(func() error {
			awarded, points, err := s.award(ctx, campaignID, eventByID, predictionsByUser[part.UserID], part)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zapLog.Error("failed to award participant",
					zap.String("user_id", part.UserID), zap.Error(err))
				userErrors = append(userErrors, UserError{UserID: part.UserID, Message: err.Error()})
				return nil
			}
			if awarded {
				usersDone++
				pointsTotal += points
			}
			return nil
		})
	}
	_ = wg.Wait()

	if len(userErrors) == 0 {
		if err := s.flip(releaseCtx, campaignID, actorID); err != nil {
			return nil, err
		}
		claimed = false
	}

	zapLog.Info("points distribution finished",
		zap.Int64("users_updated", usersDone),
		zap.Int64("points_distributed", pointsTotal),
		zap.Int("errors", len(userErrors)),
	)

	return &Result{
		Success:                usersDone > 0,
		UsersUpdated:           usersDone,
		TotalPointsDistributed: pointsTotal,
		Errors:                 userErrors,
	}, nil
}

// CanDistribute mirrors Distribute's preconditions without performing any
// write, for UI gating.
func (s *Service) CanDistribute(ctx context.Context, campaignID string) (*Precheck, error) {
	c, err := s.campaigns.FindOne(ctx, &campaign.Campaign{ID: campaignID})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return &Precheck{Reason: ReasonCampaignNotFound}, nil
	}
	if c.PointsDistributed {
		return &Precheck{Reason: ReasonAlreadyDistributed}, nil
	}
	if c.DistributionInProgress {
		return &Precheck{Reason: ReasonDistributionInProgress}, nil
	}

	events, err := s.events.Find(ctx, &campaign.Event{CampaignID: campaignID})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if !ev.Result.Approved {
			return &Precheck{Reason: ReasonEventsPendingApproval}, nil
		}
	}

	return &Precheck{CanDistribute: true}, nil
}

// claim takes the distribution_in_progress marker with a compare-and-set so
// two concurrent calls cannot both pass the precondition check.
func (s *Service) claim(ctx context.Context, campaignID string) error {
	c, err := s.campaigns.FindOne(ctx, &campaign.Campaign{ID: campaignID})
	if err != nil {
		return err
	}
	if c == nil {
		return errutil.NotFound("campaign not found", nil,
			errutil.WithReason(ReasonCampaignNotFound),
			errutil.WithDetails(errutil.Detail{Field: "campaign_id", Message: campaignID}))
	}

	res := s.db.WithContext(ctx).Model(&campaign.Campaign{}).
		Where("id = ? AND points_distributed = ? AND distribution_in_progress = ?", campaignID, false, false).
		Updates(map[string]any{
			"distribution_in_progress": true,
			"updated_at":               time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// Lost the race; re-read to report which guard stopped us.
	c, err = s.campaigns.FindOne(ctx, &campaign.Campaign{ID: campaignID})
	if err != nil {
		return err
	}
	if c != nil && c.DistributionInProgress && !c.PointsDistributed {
		return errutil.Conflict("another distribution is in progress", nil,
			errutil.WithReason(ReasonDistributionInProgress),
			errutil.WithDetails(errutil.Detail{Field: "campaign_id", Message: campaignID}))
	}
	return errutil.Conflict("campaign points already distributed", nil,
		errutil.WithReason(ReasonAlreadyDistributed),
		errutil.WithDetails(errutil.Detail{Field: "campaign_id", Message: campaignID}))
}

func (s *Service) release(ctx context.Context, campaignID string) {
	if err := s.db.WithContext(ctx).Model(&campaign.Campaign{}).
		Where("id = ? AND distribution_in_progress = ?", campaignID, true).
		Updates(map[string]any{
			"distribution_in_progress": false,
			"updated_at":               time.Now(),
		}).Error; err != nil {
		zap.L().Error("failed to release distribution claim",
			zap.String("campaign_id", campaignID), zap.Error(err))
	}
}

// flip marks the campaign distributed with stats aggregated over every
// awarded participation, so totals stay correct across retried partial runs.
func (s *Service) flip(ctx context.Context, campaignID, actorID string) error {
	var agg struct {
		Users  int64
		Points int64
	}
	if err := s.db.WithContext(ctx).Model(&campaign.Participation{}).
		Select("COUNT(*) AS users, COALESCE(SUM(total_points), 0) AS points").
		Where("campaign_id = ? AND points_awarded = ?", campaignID, true).
		Scan(&agg).Error; err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Model(&campaign.Campaign{}).
		Where("id = ? AND points_distributed = ? AND distribution_in_progress = ?", campaignID, false, true).
		Updates(map[string]any{
			"points_distributed":       true,
			"distribution_in_progress": false,
			"users_updated":            agg.Users,
			"total_points_distributed": agg.Points,
			"distributed_at":           time.Now(),
			"distributed_by":           actorID,
			"updated_at":               time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.Conflict("campaign points already distributed", nil,
			errutil.WithReason(ReasonAlreadyDistributed),
			errutil.WithDetails(errutil.Detail{Field: "campaign_id", Message: campaignID}))
	}
	return nil
}

// award scores and credits a single participant. Ledger append, balance
// update and the points_awarded flag commit in one transaction; the flag is
// re-checked under lock so a concurrent or retried run cannot double-credit.
func (s *Service) award(
	ctx context.Context,
	campaignID string,
	events map[string]*campaign.Event,
	predictions []*campaign.Prediction,
	part *campaign.Participation,
) (awarded bool, points int64, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)
		participationTx := s.participations.WithTrx(tx)

		row, err := participationTx.FindOne(ctx, &campaign.Participation{ID: part.ID})
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("participation %s not found", part.ID)
		}
		if row.PointsAwarded {
			return nil
		}

		var total int64
		correct := 0
		breakdown := make(map[string]int64)
		for _, pred := range predictions {
			ev, ok := events[pred.EventID]
			if !ok {
				continue
			}

			outcome, err := s.engine.Score(ev, pred)
			if err != nil {
				return fmt.Errorf("scoring event %s: %w", ev.ID, err)
			}
			if outcome.IsCorrect {
				correct++
			}
			if outcome.Points > 0 {
				total += outcome.Points
				breakdown[ev.ID] += outcome.Points
			}
		}

		if total > 0 {
			if _, err := s.ledger.Apply(ctx, tx, ledger.EntryParams{
				UserID:      row.UserID,
				Type:        ledger.EntryTypeCampaignEarned,
				Amount:      total,
				Description: fmt.Sprintf("Points earned in campaign %s", campaignID),
				Metadata: map[string]any{
					"campaign_id":         campaignID,
					"correct_predictions": correct,
				},
			}); err != nil {
				return err
			}
		}

		breakdownBytes, err := json.Marshal(breakdown)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := participationTx.Update(ctx, row.ID, map[string]any{
			"total_points":        total,
			"breakdown":           datatypes.JSON(breakdownBytes),
			"correct_predictions": correct,
			"points_awarded":      true,
			"awarded_at":          now,
			"updated_at":          now,
		}); err != nil {
			return err
		}

		awarded = true
		points = total
		return nil
	})
	return awarded, points, err
}

var Module = fx.Module("distribution.service",
	fx.Provide(NewService),
)
