package adjustment

import (
	"context"
	"strings"

	"contestplane/pkg/errutil"
	"contestplane/services/ledger"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ReasonInvalidAmount = "invalid_amount"
	ReasonMissingReason = "missing_reason"
	ReasonInvalidType   = "invalid_entry_type"
)

// Service applies manual balance corrections through the ledger so every
// adjustment lands in the same auditable chain as campaign earnings.
type Service struct {
	ledger *ledger.Service
}

type ServiceParams struct {
	fx.In

	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		ledger: p.Ledger,
	}
}

type AdjustParams struct {
	UserID        string
	Amount        int64
	Reason        string
	Type          ledger.EntryType
	Metadata      map[string]any
	AllowNegative bool
	ActorID       string
}

type AdjustResult struct {
	Transaction *ledger.PointTransaction `json:"transaction"`
	NewBalance  int64                    `json:"new_balance"`
}

// Adjust credits or debits a user outside any campaign. The reason is
// mandatory and recorded in the entry metadata together with the acting
// admin, so the chain explains itself without external context.
func (s *Service) Adjust(ctx context.Context, p AdjustParams) (*AdjustResult, error) {
	if p.Amount == 0 {
		return nil, errutil.ValidationFailed("adjustment amount must be non-zero", nil,
			errutil.WithReason(ReasonInvalidAmount),
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: "must not be zero"}))
	}
	if strings.TrimSpace(p.Reason) == "" {
		return nil, errutil.ValidationFailed("adjustment reason is required", nil,
			errutil.WithReason(ReasonMissingReason),
			errutil.WithDetails(errutil.Detail{Field: "reason", Message: "must not be blank"}))
	}

	entryType := p.Type
	if entryType == "" {
		entryType = ledger.EntryTypeAdminAdjustment
	}
	switch entryType {
	case ledger.EntryTypeAdminAdjustment, ledger.EntryTypeBonus, ledger.EntryTypeRefund:
	default:
		return nil, errutil.ValidationFailed("unsupported adjustment type", nil,
			errutil.WithReason(ReasonInvalidType),
			errutil.WithDetails(errutil.Detail{Field: "type", Message: string(entryType)}))
	}

	metadata := make(map[string]any, len(p.Metadata)+2)
	for k, v := range p.Metadata {
		metadata[k] = v
	}
	metadata["reason"] = p.Reason
	metadata["adjusted_by"] = p.ActorID

	entry, err := s.ledger.Append(ctx, ledger.EntryParams{
		UserID:        p.UserID,
		Type:          entryType,
		Amount:        p.Amount,
		Description:   p.Reason,
		Metadata:      metadata,
		AllowNegative: p.AllowNegative,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("balance adjusted",
		zap.String("user_id", p.UserID),
		zap.Int64("amount", p.Amount),
		zap.String("type", string(entryType)),
		zap.String("actor", p.ActorID),
	)

	return &AdjustResult{
		Transaction: entry,
		NewBalance:  entry.BalanceAfter,
	}, nil
}

var Module = fx.Module("adjustment.service",
	fx.Provide(NewService),
)
