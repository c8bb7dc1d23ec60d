package ledger

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"matwana-controlplane/pkg/db/option"
	"matwana-controlplane/pkg/errutil"
	"matwana-controlplane/pkg/repository"
	"matwana-controlplane/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	seq  sequence.Generator

	ledger  repository.Repository[LedgerEntry]
	balance repository.Repository[Balance]
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
	Seq  sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		seq:     p.Seq,
		ledger:  repository.ProvideStore[LedgerEntry](p.DB),
		balance: repository.ProvideStore[Balance](p.DB),
	}
}

// Credit records earnings for a verified gig. The reference id (the gig id)
// makes the call idempotent: a second credit for the same reference fails.
func (s *Service) Credit(ctx context.Context, p EntryParams) (*LedgerEntry, error) {
	return s.record(ctx, EntryTypeCredit, p)
}

// Settle debits a freelancer's outstanding balance under a freshly minted
// payout code.
func (s *Service) Settle(ctx context.Context, freelancerID string, amount int64) (*LedgerEntry, error) {
	reference, err := s.payoutCode(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to mint payout code", errutil.WithErr(err))
	}

	return s.record(ctx, EntryTypeDebit, EntryParams{
		FreelancerID: freelancerID,
		Amount:       amount,
		ReferenceID:  reference,
		Description:  "payout settlement",
	})
}

func (s *Service) record(ctx context.Context, entryType string, p EntryParams) (*LedgerEntry, error) {
	if p.FreelancerID == "" {
		return nil, errutil.ValidationFailed("freelancer id is required")
	}
	if p.Amount <= 0 {
		return nil, errutil.ValidationFailed("amount must be positive")
	}
	if p.ReferenceID == "" {
		return nil, errutil.ValidationFailed("reference id is required")
	}

	if exist, err := s.ledger.FindOne(ctx, &LedgerEntry{ReferenceID: p.ReferenceID}); err != nil {
		return nil, errutil.Internal("failed to check reference", errutil.WithErr(err))
	} else if exist != nil {
		zap.L().Warn("ledger reference already recorded", zap.String("reference_id", p.ReferenceID))
		return nil, errutil.Conflict("reference already recorded")
	}

	txnID, err := GenerateTransactionID()
	if err != nil {
		return nil, errutil.Internal("failed to generate transaction id", errutil.WithErr(err))
	}

	now := time.Now().UTC()
	entry := &LedgerEntry{
		ID:            s.node.Generate().String(),
		CreatedAt:     now,
		UpdatedAt:     now,
		FreelancerID:  p.FreelancerID,
		Type:          entryType,
		Amount:        p.Amount,
		TransactionID: txnID,
		ReferenceID:   p.ReferenceID,
		Description:   p.Description,
		Metadata:      p.Metadata,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		ledgerTx := s.ledger.WithTrx(tx)

		last, err := ledgerTx.FindOne(ctx, &LedgerEntry{FreelancerID: p.FreelancerID},
			option.WithOrder("created_at DESC"),
			option.WithLockForUpdate(),
		)
		if err != nil {
			return err
		}
		if last != nil {
			entry.PreviousHash = last.Hash
		}
		entry.Hash = entry.GenerateHash()

		if err := ledgerTx.Create(ctx, entry); err != nil {
			return err
		}

		return s.applyBalance(ctx, tx, entry)
	}); err != nil {
		var be errutil.BaseError
		if errors.As(err, &be) {
			return nil, err
		}
		zap.L().Error("failed to record ledger entry",
			zap.String("freelancer_id", p.FreelancerID), zap.Error(err))
		return nil, errutil.Internal("failed to record ledger entry", errutil.WithErr(err))
	}

	return entry, nil
}

func (s *Service) applyBalance(ctx context.Context, tx *gorm.DB, entry *LedgerEntry) error {
	balanceTx := s.balance.WithTrx(tx)

	delta := entry.Amount
	if entry.Type == EntryTypeDebit {
		delta = -delta
	}

	bal, err := balanceTx.FindOne(ctx, &Balance{FreelancerID: entry.FreelancerID}, option.WithLockForUpdate())
	if err != nil {
		return err
	}

	if bal == nil {
		if delta < 0 {
			return errutil.UnprocessableEntity("insufficient balance")
		}
		return balanceTx.Create(ctx, &Balance{
			ID:           s.node.Generate().String(),
			FreelancerID: entry.FreelancerID,
			Balance:      delta,
		})
	}

	next := bal.Balance + delta
	if next < 0 {
		return errutil.UnprocessableEntity("insufficient balance")
	}

	return balanceTx.Update(ctx, bal.ID, map[string]any{"balance": next})
}

// Balance returns the freelancer's current earnings balance, zero if they
// have never earned.
func (s *Service) Balance(ctx context.Context, freelancerID string) (int64, error) {
	if freelancerID == "" {
		return 0, errutil.ValidationFailed("freelancer id is required")
	}

	bal, err := s.balance.FindOne(ctx, &Balance{FreelancerID: freelancerID})
	if err != nil {
		return 0, errutil.Internal("failed to query balance", errutil.WithErr(err))
	}
	if bal == nil {
		return 0, nil
	}
	return bal.Balance, nil
}

func (s *Service) Entries(ctx context.Context, freelancerID string) ([]*LedgerEntry, error) {
	if freelancerID == "" {
		return nil, errutil.ValidationFailed("freelancer id is required")
	}
	return s.ledger.Find(ctx, &LedgerEntry{FreelancerID: freelancerID}, option.WithOrder("created_at DESC"))
}

// VerifyChain walks a freelancer's entries oldest-first, checking both the
// stored hash of each entry and its link to the previous one.
func (s *Service) VerifyChain(ctx context.Context, freelancerID string) (*ChainReport, error) {
	entries, err := s.ledger.Find(ctx, &LedgerEntry{FreelancerID: freelancerID}, option.WithOrder("created_at ASC"))
	if err != nil {
		return nil, errutil.Internal("failed to list ledger entries", errutil.WithErr(err))
	}

	report := &ChainReport{Valid: true, Entries: len(entries)}

	previousHash := ""
	for _, entry := range entries {
		if entry.PreviousHash != previousHash || entry.Hash != entry.GenerateHash() {
			report.Valid = false
			report.BrokenEntryID = entry.ID
			return report, nil
		}
		previousHash = entry.Hash
	}

	return report, nil
}

func (s *Service) payoutCode(ctx context.Context) (string, error) {
	if s.seq != nil {
		return s.seq.NextPayoutCode(ctx)
	}
	return GenerateTransactionID()
}

// GenerateTransactionID mints a date-prefixed random reference for a ledger
// movement.
func GenerateTransactionID() (string, error) {
	datePart := time.Now().UTC().Format("20060102")

	r := make([]byte, 3)
	if _, err := rand.Read(r); err != nil {
		return "", err
	}
	randomPart := strings.ToUpper(fmt.Sprintf("%x", r))

	return fmt.Sprintf("%s-%s", datePart, randomPart), nil
}
