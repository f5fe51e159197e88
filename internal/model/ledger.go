package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

type TransactionType string

const (
	TxAward            TransactionType = "award"
	TxRedemption       TransactionType = "redemption"
	TxBonus            TransactionType = "bonus"
	TxSurveyCompletion TransactionType = "survey_completion"
	TxManualAward      TransactionType = "manual_award"
	TxSystemAdjustment TransactionType = "system_adjustment"
	TxReferralBonus    TransactionType = "referral_bonus"
	TxWeeklyBonus      TransactionType = "weekly_bonus"
	TxSignupBonus      TransactionType = "signup_bonus"
	TxAppDownloadBonus TransactionType = "app_download_bonus"
	TxScanBonus        TransactionType = "scan_bonus"
	TxReviewBonus      TransactionType = "review_bonus"
	TxContestPrize     TransactionType = "contest_prize"
)

var transactionTypes = map[TransactionType]struct{}{
	TxAward: {}, TxRedemption: {}, TxBonus: {}, TxSurveyCompletion: {},
	TxManualAward: {}, TxSystemAdjustment: {}, TxReferralBonus: {},
	TxWeeklyBonus: {}, TxSignupBonus: {}, TxAppDownloadBonus: {},
	TxScanBonus: {}, TxReviewBonus: {}, TxContestPrize: {},
}

func (t TransactionType) Valid() bool {
	_, ok := transactionTypes[t]
	return ok
}

// Metadata is an opaque key-value payload attached to a ledger entry. The
// ledger stores it as JSON and never interprets it. Numbers decode as
// json.Number so integers beyond 2^53 survive a round trip.
type Metadata map[string]any

// ParseMetadata decodes a JSON object into Metadata, keeping numbers as
// their literal text.
func ParseMetadata(b []byte) (Metadata, error) {
	out := Metadata{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after metadata object")
	}
	if out == nil {
		out = Metadata{}
	}
	return out, nil
}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

func (m *Metadata) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("scan metadata: unsupported type %T", src)
	}
	if len(b) == 0 {
		*m = Metadata{}
		return nil
	}
	out, err := ParseMetadata(b)
	if err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}
	*m = out
	return nil
}

// LedgerEntry is one immutable point movement.
type LedgerEntry struct {
	ID              int64           `json:"id"`
	PanelistID      int64           `json:"panelist_id"`
	Points          int64           `json:"points"`
	BalanceAfter    int64           `json:"balance_after"`
	TransactionType TransactionType `json:"transaction_type"`
	Title           string          `json:"title"`
	Description     *string         `json:"description"`
	Metadata        Metadata        `json:"metadata"`
	AwardedBy       *string         `json:"awarded_by"`
	CreatedAt       time.Time       `json:"created_at"`
	EffectiveDate   time.Time       `json:"effective_date"`
}

// Transaction is a request to append one entry to the ledger.
type Transaction struct {
	PanelistID    int64
	Points        int64
	Type          TransactionType
	Title         string
	Description   *string
	Metadata      Metadata
	EffectiveDate time.Time
	AwardedBy     *string
	// UniqueBy names a metadata key. When set, the issuer rejects the
	// transaction if the panelist already has an entry of the same type
	// carrying the same value under that key.
	UniqueBy      string
}

// IssueResult reports the entry written and the balance projection after it.
type IssueResult struct {
	EntryID       int64 `json:"entry_id"`
	NewBalance    int64 `json:"new_balance"`
	TotalEarned   int64 `json:"total_earned"`
	TotalRedeemed int64 `json:"total_redeemed"`
}

// BalanceDrift describes a panelist whose cached projection disagrees with
// the ledger.
type BalanceDrift struct {
	PanelistID          int64 `json:"panelist_id"`
	PointsBalance       int64 `json:"points_balance"`
	LastBalanceAfter    int64 `json:"last_balance_after"`
	TotalPointsEarned   int64 `json:"total_points_earned"`
	LedgerEarned        int64 `json:"ledger_earned"`
	TotalPointsRedeemed int64 `json:"total_points_redeemed"`
	LedgerRedeemed      int64 `json:"ledger_redeemed"`
}
