package campaign

import (
	"time"

	"gorm.io/datatypes"
)

type CampaignStatus string
type EventType string
type EventStatus string
type ResultState string

const (
	CampaignStatusDraft     CampaignStatus = "DRAFT"
	CampaignStatusActive    CampaignStatus = "ACTIVE"
	CampaignStatusCompleted CampaignStatus = "COMPLETED"

	EventTypeChoiceSelection   EventType = "choice_selection"
	EventTypeNumericPrediction EventType = "numeric_prediction"

	EventStatusUpcoming  EventStatus = "upcoming"
	EventStatusLive      EventStatus = "live"
	EventStatusCompleted EventStatus = "completed"
	EventStatusLocked    EventStatus = "locked"

	ResultStateUnresolved ResultState = "unresolved"
	ResultStateRecorded   ResultState = "recorded"
	ResultStateVerified   ResultState = "verified"
	ResultStateApproved   ResultState = "approved"
)

// Campaign is a time-boxed contest owning events and participations.
// PointsDistributed flips false->true at most once; DistributionInProgress is
// the claim marker that serializes concurrent distribution attempts.
type Campaign struct {
	ID                     string         `gorm:"column:id;primaryKey"`
	Code                   string         `gorm:"column:code;uniqueIndex"`
	Name                   string         `gorm:"column:name;type:varchar(255);not null"`
	Description            string         `gorm:"column:description;type:text"`
	Status                 CampaignStatus `gorm:"column:status;type:varchar(20);not null;default:'DRAFT'"`
	PointsDistributed      bool           `gorm:"column:points_distributed;not null;default:false"`
	DistributionInProgress bool           `gorm:"column:distribution_in_progress;not null;default:false"`
	UsersUpdated           int64          `gorm:"column:users_updated;not null;default:0"`
	TotalPointsDistributed int64          `gorm:"column:total_points_distributed;not null;default:0"`
	DistributedAt          *time.Time     `gorm:"column:distributed_at"`
	DistributedBy          string         `gorm:"column:distributed_by"`
	StartAt                *time.Time     `gorm:"column:start_at"`
	EndAt                  *time.Time     `gorm:"column:end_at"`
	CreatedAt              time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// Result is the recorded real-world outcome for an event, embedded in the
// event row. Approved implies Verified; once Approved the outcome is immutable.
type Result struct {
	Recorded   bool       `gorm:"column:recorded;not null;default:false"`
	Outcome    string     `gorm:"column:outcome"`
	Notes      string     `gorm:"column:notes;type:text"`
	Verified   bool       `gorm:"column:verified;not null;default:false"`
	VerifiedAt *time.Time `gorm:"column:verified_at"`
	VerifiedBy string     `gorm:"column:verified_by"`
	Approved   bool       `gorm:"column:approved;not null;default:false"`
	ApprovedAt *time.Time `gorm:"column:approved_at"`
	ApprovedBy string     `gorm:"column:approved_by"`
}

func (r Result) State() ResultState {
	switch {
	case r.Approved:
		return ResultStateApproved
	case r.Verified:
		return ResultStateVerified
	case r.Recorded:
		return ResultStateRecorded
	default:
		return ResultStateUnresolved
	}
}

type Event struct {
	ID         string      `gorm:"column:id;primaryKey"`
	CampaignID string      `gorm:"column:campaign_id;index;not null"`
	Title      string      `gorm:"column:title;type:varchar(255);not null"`
	Type       EventType   `gorm:"column:type;type:varchar(30);not null"`
	Points     int64       `gorm:"column:points;not null"`
	Status     EventStatus `gorm:"column:status;type:varchar(20);not null;default:'upcoming'"`
	Result     Result      `gorm:"embedded;embeddedPrefix:result_"`
	CreatedAt  time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

// Prediction is one user's guess for one event. At most one per
// (event, user); immutable after creation.
type Prediction struct {
	ID         string    `gorm:"column:id;primaryKey"`
	EventID    string    `gorm:"column:event_id;uniqueIndex:idx_prediction_event_user;not null"`
	UserID     string    `gorm:"column:user_id;uniqueIndex:idx_prediction_event_user;not null"`
	CampaignID string    `gorm:"column:campaign_id;index;not null"`
	Value      string    `gorm:"column:value;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Participation is one user's aggregate standing within a campaign.
// PointsAwarded is the per-user idempotency key for distribution: it is
// checked and set in the same transaction as the ledger write.
type Participation struct {
	ID                 string         `gorm:"column:id;primaryKey"`
	CampaignID         string         `gorm:"column:campaign_id;uniqueIndex:idx_participation_campaign_user;not null"`
	UserID             string         `gorm:"column:user_id;uniqueIndex:idx_participation_campaign_user;not null"`
	TotalPoints        int64          `gorm:"column:total_points;not null;default:0"`
	Breakdown          datatypes.JSON `gorm:"column:breakdown"`
	CorrectPredictions int            `gorm:"column:correct_predictions;not null;default:0"`
	PredictionsCount   int            `gorm:"column:predictions_count;not null;default:0"`
	PointsAwarded      bool           `gorm:"column:points_awarded;not null;default:false"`
	AwardedAt          *time.Time     `gorm:"column:awarded_at"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
