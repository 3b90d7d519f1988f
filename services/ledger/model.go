package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type EntryType string

const (
	EntryTypeCampaignEarned  EntryType = "campaign_earned"
	EntryTypeAdminAdjustment EntryType = "admin_adjustment"
	EntryTypeBonus           EntryType = "bonus"
	EntryTypeRefund          EntryType = "refund"
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeCampaignEarned, EntryTypeAdminAdjustment, EntryTypeBonus, EntryTypeRefund:
		return true
	default:
		return false
	}
}

// Balance is the denormalized current points total per user. It always equals
// the sum of that user's PointTransaction amounts.
type Balance struct {
	ID        string    `gorm:"column:id;primaryKey"`
	UserID    string    `gorm:"column:user_id;uniqueIndex;not null"`
	Balance   int64     `gorm:"column:balance;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// PointTransaction is one immutable, signed entry in a user's points ledger.
// Entries are hash-chained per user so tampering is detectable.
type PointTransaction struct {
	ID              string         `gorm:"column:id;primaryKey"`
	CreatedAt       time.Time      `gorm:"column:created_at;index"`
	UserID          string         `gorm:"column:user_id;index;not null"`
	Type            EntryType      `gorm:"column:type;type:varchar(30);not null"`
	Amount          int64          `gorm:"column:amount;not null"`
	BalanceAfter    int64          `gorm:"column:balance_after;not null"`
	TransactionCode string         `gorm:"column:transaction_code"`
	Description     string         `gorm:"column:description;type:text"`
	PreviousHash    string         `gorm:"column:previous_hash"`
	Hash            string         `gorm:"column:hash"`
	Metadata        datatypes.JSON `gorm:"column:metadata"`
}

func (m *PointTransaction) HashFields() map[string]string {
	return map[string]string{
		"id":               m.ID,
		"user_id":          m.UserID,
		"type":             string(m.Type),
		"amount":           fmt.Sprintf("%d", m.Amount),
		"balance_after":    fmt.Sprintf("%d", m.BalanceAfter),
		"transaction_code": m.TransactionCode,
		"description":      m.Description,
		// Postgres timestamptz keeps microseconds; hash at that precision so
		// the hashed value survives the storage round-trip.
		"created_at":    m.CreatedAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
		"previous_hash": m.PreviousHash,
	}
}

func (m *PointTransaction) GenerateHash() string {
	fields := m.HashFields()
	var keys []string
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	joined := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(hash[:])
}

func GenerateTransactionCode() (string, error) {
	datePart := time.Now().Format("20060102")

	r := make([]byte, 3) // 3 bytes = 6 hex chars
	_, err := rand.Read(r)
	if err != nil {
		return "", err
	}
	randomPart := strings.ToUpper(fmt.Sprintf("%x", r))

	return fmt.Sprintf("TXN-%s-%s", datePart, randomPart), nil
}
