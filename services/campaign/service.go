package campaign

import (
	"context"
	"strings"
	"time"

	"contestplane/pkg/db/option"
	"contestplane/pkg/errutil"
	"contestplane/pkg/repository"
	"contestplane/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	seq  sequence.Generator

	campaigns      repository.Repository[Campaign]
	events         repository.Repository[Event]
	predictions    repository.Repository[Prediction]
	participations repository.Repository[Participation]
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
	Seq  sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		seq:  p.Seq,

		campaigns:      repository.ProvideStore[Campaign](p.DB),
		events:         repository.ProvideStore[Event](p.DB),
		predictions:    repository.ProvideStore[Prediction](p.DB),
		participations: repository.ProvideStore[Participation](p.DB),
	}
}

type CreateCampaignParams struct {
	Name        string
	Description string
	StartAt     *time.Time
	EndAt       *time.Time
}

func (s *Service) CreateCampaign(ctx context.Context, p CreateCampaignParams) (*Campaign, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, errutil.ValidationFailed("campaign name is required", nil)
	}

	c := &Campaign{
		ID:          s.node.Generate().String(),
		Name:        p.Name,
		Description: p.Description,
		Status:      CampaignStatusDraft,
		StartAt:     p.StartAt,
		EndAt:       p.EndAt,
	}

	if s.seq != nil {
		code, err := s.seq.NextCampaignCode(ctx)
		if err != nil {
			zap.L().Warn("failed to generate campaign code", zap.Error(err))
		} else {
			c.Code = code
		}
	}
	if c.Code == "" {
		c.Code = "CMP-" + c.ID
	}

	if err := s.campaigns.Create(ctx, c); err != nil {
		zap.L().Error("failed to create campaign", zap.Error(err))
		return nil, err
	}

	return c, nil
}

func (s *Service) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	c, err := s.campaigns.FindOne(ctx, &Campaign{ID: id})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil,
			errutil.WithDetails(errutil.Detail{Field: "campaign_id", Message: id}))
	}
	return c, nil
}

func (s *Service) ListCampaigns(ctx context.Context) ([]*Campaign, error) {
	return s.campaigns.Find(ctx, &Campaign{}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "created_at",
		OrderBy: "desc",
		Allow:   map[string]bool{"created_at": true},
	}))
}

type AddEventParams struct {
	CampaignID string
	Title      string
	Type       EventType
	Points     int64
}

func (s *Service) AddEvent(ctx context.Context, p AddEventParams) (*Event, error) {
	if p.Type != EventTypeChoiceSelection && p.Type != EventTypeNumericPrediction {
		return nil, errutil.ValidationFailed("unsupported event type", nil,
			errutil.WithDetails(errutil.Detail{Field: "type", Message: string(p.Type)}))
	}
	if p.Points <= 0 {
		return nil, errutil.ValidationFailed("event points must be positive", nil)
	}

	if _, err := s.GetCampaign(ctx, p.CampaignID); err != nil {
		return nil, err
	}

	e := &Event{
		ID:         s.node.Generate().String(),
		CampaignID: p.CampaignID,
		Title:      p.Title,
		Type:       p.Type,
		Points:     p.Points,
		Status:     EventStatusUpcoming,
	}

	if err := s.events.Create(ctx, e); err != nil {
		zap.L().Error("failed to create event", zap.Error(err))
		return nil, err
	}

	return e, nil
}

func (s *Service) GetEvent(ctx context.Context, id string) (*Event, error) {
	e, err := s.events.FindOne(ctx, &Event{ID: id})
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, errutil.NotFound("event not found", nil,
			errutil.WithDetails(errutil.Detail{Field: "event_id", Message: id}))
	}
	return e, nil
}

func (s *Service) ListEvents(ctx context.Context, campaignID string) ([]*Event, error) {
	return s.events.Find(ctx, &Event{CampaignID: campaignID})
}

type SubmitPredictionParams struct {
	EventID string
	UserID  string
	Value   string
}

// SubmitPrediction stores the user's guess and keeps the per-campaign
// participation row in step. Predictions are rejected once an outcome has
// been recorded for the event.
func (s *Service) SubmitPrediction(ctx context.Context, p SubmitPredictionParams) (*Prediction, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, errutil.ValidationFailed("user id is required", nil)
	}
	if strings.TrimSpace(p.Value) == "" {
		return nil, errutil.ValidationFailed("prediction value is required", nil)
	}

	var created *Prediction
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)

		eventTx := s.events.WithTrx(tx)
		predictionTx := s.predictions.WithTrx(tx)
		participationTx := s.participations.WithTrx(tx)

		event, err := eventTx.FindOne(ctx, &Event{ID: p.EventID})
		if err != nil {
			return err
		}
		if event == nil {
			return errutil.NotFound("event not found", nil,
				errutil.WithDetails(errutil.Detail{Field: "event_id", Message: p.EventID}))
		}
		if event.Result.Recorded || event.Status == EventStatusCompleted || event.Status == EventStatusLocked {
			return errutil.Conflict("event no longer accepts predictions", nil,
				errutil.WithReason("event_locked"),
				errutil.WithDetails(errutil.Detail{Field: "event_id", Message: event.ID}))
		}

		existing, err := predictionTx.FindOne(ctx, &Prediction{EventID: p.EventID, UserID: p.UserID})
		if err != nil {
			return err
		}
		if existing != nil {
			return errutil.Conflict("prediction already submitted", nil,
				errutil.WithReason("prediction_exists"),
				errutil.WithDetails(errutil.Detail{Field: "event_id", Message: p.EventID}))
		}

		created = &Prediction{
			ID:         s.node.Generate().String(),
			EventID:    event.ID,
			UserID:     p.UserID,
			CampaignID: event.CampaignID,
			Value:      p.Value,
		}
		if err := predictionTx.Create(ctx, created); err != nil {
			return err
		}

		participation, err := participationTx.FindOne(ctx, &Participation{
			CampaignID: event.CampaignID,
			UserID:     p.UserID,
		})
		if err != nil {
			return err
		}

		if participation == nil {
			return participationTx.Create(ctx, &Participation{
				ID:               s.node.Generate().String(),
				CampaignID:       event.CampaignID,
				UserID:           p.UserID,
				PredictionsCount: 1,
			})
		}

		return participationTx.Update(ctx, participation.ID, map[string]any{
			"predictions_count": gorm.Expr("predictions_count + 1"),
			"updated_at":        time.Now(),
		})
	}); err != nil {
		return nil, err
	}

	return created, nil
}

func (s *Service) ListParticipations(ctx context.Context, campaignID string) ([]*Participation, error) {
	return s.participations.Find(ctx, &Participation{CampaignID: campaignID})
}
