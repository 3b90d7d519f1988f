package ledger

import (
	"context"
	"encoding/json"
	"time"

	"contestplane/pkg/db/option"
	"contestplane/pkg/errutil"
	"contestplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const genesisHash = "GENESIS"

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	entries  repository.Repository[PointTransaction]
	balances repository.Repository[Balance]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		entries:  repository.ProvideStore[PointTransaction](p.DB),
		balances: repository.ProvideStore[Balance](p.DB),
	}
}

// EntryParams describes one ledger commit. Amount is signed; negative amounts
// are rejected when they would take the balance below zero, unless
// AllowNegative is set.
type EntryParams struct {
	UserID        string
	Type          EntryType
	Amount        int64
	Description   string
	Metadata      map[string]any
	AllowNegative bool
}

// Apply commits one ledger entry inside the caller's transaction: row-locked
// read of the last entry and balance, entry insert with BalanceAfter and
// chained hash, balance upsert. This is the single atomic commit primitive
// shared by campaign distribution and manual adjustments; callers own the
// surrounding gorm transaction.
func (s *Service) Apply(ctx context.Context, tx *gorm.DB, p EntryParams) (*PointTransaction, error) {
	if !p.Type.Valid() {
		return nil, errutil.BadRequest("unsupported entry type", nil,
			errutil.WithDetails(errutil.Detail{Field: "type", Message: string(p.Type)}))
	}
	if p.Amount == 0 {
		return nil, errutil.ValidationFailed("amount must be non-zero", nil,
			errutil.WithReason("invalid_amount"))
	}

	entryTx := s.entries.WithTrx(tx)
	balanceTx := s.balances.WithTrx(tx)

	lastEntry, err := entryTx.FindOne(ctx, &PointTransaction{UserID: p.UserID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		// Snowflake IDs break ties between entries sharing a timestamp.
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "desc",
			Allow:   map[string]bool{"id": true},
		}),
		option.WithLockingUpdate(),
	)
	if err != nil {
		return nil, err
	}

	balance, err := balanceTx.FindOne(ctx, &Balance{UserID: p.UserID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}

	var current int64
	if balance != nil {
		current = balance.Balance
	}

	newBalance := current + p.Amount
	if newBalance < 0 && !p.AllowNegative {
		return nil, errutil.UnprocessableEntity("insufficient balance", nil,
			errutil.WithReason("insufficient_balance"),
			errutil.WithDetails(
				errutil.Detail{Field: "user_id", Message: p.UserID},
			))
	}

	code, err := GenerateTransactionCode()
	if err != nil {
		zap.L().Error("failed to generate transaction code", zap.Error(err))
		return nil, err
	}

	previousHash := genesisHash
	if lastEntry != nil {
		previousHash = lastEntry.Hash
	}

	metaBytes, err := json.Marshal(p.Metadata)
	if err != nil {
		return nil, err
	}

	entry := &PointTransaction{
		ID:              s.node.Generate().String(),
		CreatedAt:       time.Now().Truncate(time.Microsecond),
		UserID:          p.UserID,
		Type:            p.Type,
		Amount:          p.Amount,
		BalanceAfter:    newBalance,
		TransactionCode: code,
		Description:     p.Description,
		PreviousHash:    previousHash,
		Metadata:        datatypes.JSON(metaBytes),
	}
	entry.Hash = entry.GenerateHash()

	if err := entryTx.Create(ctx, entry); err != nil {
		return nil, err
	}

	if balance == nil {
		if err := balanceTx.Create(ctx, &Balance{
			ID:        s.node.Generate().String(),
			UserID:    p.UserID,
			Balance:   newBalance,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}); err != nil {
			return nil, err
		}
	} else {
		if err := balanceTx.Update(ctx, balance.ID, map[string]any{
			"balance":    newBalance,
			"updated_at": time.Now(),
		}); err != nil {
			return nil, err
		}
	}

	return entry, nil
}

// Append commits one entry in its own transaction.
func (s *Service) Append(ctx context.Context, p EntryParams) (*PointTransaction, error) {
	span := trace.SpanFromContext(ctx)
	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("user_id", p.UserID),
	}

	var entry *PointTransaction
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)

		var err error
		entry, err = s.Apply(ctx, tx, p)
		return err
	}); err != nil {
		zap.L().With(opts...).Error("failed to append ledger entry", zap.Error(err))
		return nil, err
	}

	return entry, nil
}

// GetBalance returns the user's current points total; users with no ledger
// history have balance 0.
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	balance, err := s.balances.FindOne(ctx, &Balance{UserID: userID})
	if err != nil {
		return 0, err
	}
	if balance == nil {
		return 0, nil
	}
	return balance.Balance, nil
}

func (s *Service) ListEntries(ctx context.Context, userID string) ([]*PointTransaction, error) {
	return s.entries.Find(ctx, &PointTransaction{UserID: userID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "desc",
			Allow:   map[string]bool{"id": true},
		}),
	)
}

// VerifyChain replays the user's hash chain and reports whether every entry
// still matches its recorded hash.
func (s *Service) VerifyChain(ctx context.Context, userID string) (bool, error) {
	span := trace.SpanFromContext(ctx)
	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("user_id", userID),
	}

	entries, err := s.entries.Find(ctx, &PointTransaction{UserID: userID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "asc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "asc",
			Allow:   map[string]bool{"id": true},
		}),
	)
	if err != nil {
		zap.L().With(opts...).Error("failed to query ledger entries", zap.Error(err))
		return false, err
	}

	lastHash := genesisHash
	for _, entry := range entries {
		if entry.Hash != entry.GenerateHash() || entry.PreviousHash != lastHash {
			return false, nil
		}
		lastHash = entry.Hash
	}

	return true, nil
}
