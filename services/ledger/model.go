package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	EntryTypeCredit = "CREDIT"
	EntryTypeDebit  = "DEBIT"
)

// Balance caches a freelancer's current earnings balance. The chained entries
// are authoritative; this row is what the dashboard reads.
type Balance struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	FreelancerID string    `gorm:"column:freelancer_id;uniqueIndex" json:"freelancer_id"`
	Balance      int64     `gorm:"column:balance" json:"balance"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Balance) TableName() string {
	return "ledger_balances"
}

// LedgerEntry is one movement on a freelancer's earnings ledger: a credit per
// verified gig, a debit per settled payout. Entries are hash-chained per
// freelancer so tampering is detectable.
type LedgerEntry struct {
	ID            string         `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt     time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at" json:"updated_at"`
	FreelancerID  string         `gorm:"column:freelancer_id;index" json:"freelancer_id"`
	Type          string         `gorm:"column:type" json:"type"`
	Amount        int64          `gorm:"column:amount" json:"amount"`
	TransactionID string         `gorm:"column:transaction_id" json:"transaction_id"`
	ReferenceID   string         `gorm:"column:reference_id;index" json:"reference_id"`
	Description   string         `gorm:"column:description" json:"description"`
	PreviousHash  string         `gorm:"column:previous_hash" json:"previous_hash"`
	Hash          string         `gorm:"column:hash" json:"hash"`
	Metadata      datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

func (m *LedgerEntry) HashFields() map[string]string {
	return map[string]string{
		"id":             m.ID,
		"freelancer_id":  m.FreelancerID,
		"type":           m.Type,
		"amount":         fmt.Sprintf("%d", m.Amount),
		"transaction_id": m.TransactionID,
		"reference_id":   m.ReferenceID,
		"description":    m.Description,
		"created_at":     m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":  m.PreviousHash,
	}
}

func (m *LedgerEntry) GenerateHash() string {
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

// EntryParams is the input for recording a ledger movement.
type EntryParams struct {
	FreelancerID string
	Amount       int64
	ReferenceID  string
	Description  string
	Metadata     datatypes.JSON
}

// ChainReport is the result of walking a freelancer's hash chain.
type ChainReport struct {
	Valid         bool   `json:"valid"`
	Entries       int    `json:"entries"`
	BrokenEntryID string `json:"broken_entry_id,omitempty"`
}
