// Package feedback relays signed feedback to the feedback contract and reads
// records and reputation back from it.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pilacorp/go-did-gateway/apperr"
	"github.com/pilacorp/go-did-gateway/chain"
	"github.com/pilacorp/go-did-gateway/metrics"
	"github.com/pilacorp/go-did-gateway/signer"
)

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Ledger is the feedback contract as seen by the service.
type Ledger interface {
	SubmitFeedback(ctx context.Context, submitterDID, receiverDID, message string, rating uint8) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	FeedbackCount(ctx context.Context) (uint64, error)
	FeedbackAt(ctx context.Context, index uint64) (*chain.FeedbackEntry, error)
	Reputation(ctx context.Context, did string) (*chain.ReputationEntry, error)
	AverageRating(ctx context.Context, did string) (*big.Int, error)
}

// Service implements feedback submission and queries.
type Service struct {
	ledger  Ledger
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewService creates a Service. m may be nil.
func NewService(ledger Ledger, log *slog.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		ledger:  ledger,
		log:     log,
		metrics: m,
	}
}

// Submit validates a signed feedback, relays it to the contract and waits for
// one confirmation.
//
// Once the transaction is broadcast, cancellation of ctx no longer aborts the
// wait: the write cannot be recalled, so the caller still gets a receipt.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	if sub.Missing() || sub.Signature == "" {
		s.metrics.ObserveFeedbackSubmission(metrics.ResultInvalid)
		return nil, apperr.Validation("Message, submitter DID, receiver DID, rating, and signature are required")
	}
	if sub.Rating < MinRating || sub.Rating > MaxRating {
		s.metrics.ObserveFeedbackSubmission(metrics.ResultInvalid)
		return nil, apperr.Validation("rating must be between %d and %d", MinRating, MaxRating)
	}
	if !sub.ValidUTF8() {
		s.metrics.ObserveFeedbackSubmission(metrics.ResultInvalid)
		return nil, apperr.Validation("feedback fields must be valid UTF-8")
	}

	payload, err := sub.Payload.Canonical()
	if err != nil {
		return nil, apperr.Internal(err, "failed to build feedback payload")
	}

	submitter, err := signer.RecoverAddress(payload, sub.Signature)
	if err != nil {
		s.metrics.ObserveFeedbackSubmission(metrics.ResultInvalid)
		return nil, apperr.InvalidInput(err, "invalid signature")
	}

	tx, err := s.ledger.SubmitFeedback(ctx, sub.SubmitterDID, sub.ReceiverDID, sub.Message, uint8(sub.Rating))
	if err != nil {
		s.observeFailure(err)
		return nil, err
	}

	log := s.log.With("txHash", tx.Hash().Hex(), "submitter", submitter, "receiverDid", sub.ReceiverDID)
	log.Info("Feedback transaction broadcast")

	start := time.Now()
	receipt, err := s.ledger.WaitMined(context.WithoutCancel(ctx), tx)
	if err != nil {
		log.Error("Feedback transaction not confirmed", "err", err)
		s.observeFailure(err)
		return nil, err
	}
	s.metrics.ObserveConfirmation(time.Since(start))
	s.metrics.ObserveFeedbackSubmission(metrics.ResultSuccess)

	log.Info("Feedback transaction confirmed", "blockNumber", receipt.BlockNumber)

	return &Receipt{
		TransactionHash: tx.Hash().Hex(),
		BlockNumber:     receipt.BlockNumber.Uint64(),
		SubmitterDID:    sub.SubmitterDID,
		ReceiverDID:     sub.ReceiverDID,
		Message:         sub.Message,
		Rating:          sub.Rating,
		Submitter:       submitter,
	}, nil
}

// List returns every feedback record, oldest first.
//
// Records are fetched one index at a time, so the cost grows with the size of
// the ledger.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	count, err := s.ledger.FeedbackCount(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, count)
	for i := uint64(0); i < count; i++ {
		entry, err := s.ledger.FeedbackAt(ctx, i)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{
			Index:        i,
			Submitter:    strings.ToLower(entry.Submitter.Hex()),
			SubmitterDID: entry.SubmitterDID,
			ReceiverDID:  entry.ReceiverDID,
			Message:      entry.Message,
			Rating:       fmt.Sprintf("%d", entry.Rating),
			Timestamp:    entry.Timestamp.UTC().Format(timestampLayout),
		})
	}

	return records, nil
}

// Reputation returns the aggregate rating of did.
//
// A DID without feedback has an average of "0.00"; the average is not read
// from the contract in that case because it would divide by zero.
func (s *Service) Reputation(ctx context.Context, did string) (*Reputation, error) {
	did = strings.TrimSpace(did)
	if did == "" {
		return nil, apperr.Validation("DID is required")
	}

	rep, err := s.ledger.Reputation(ctx, did)
	if err != nil {
		return nil, err
	}

	average := "0.00"
	if rep.FeedbackCount.Sign() > 0 {
		scaled, err := s.ledger.AverageRating(ctx, did)
		if err != nil {
			return nil, err
		}
		average = formatScaled(scaled)
	}

	return &Reputation{
		DID:           did,
		TotalRating:   rep.TotalRating.String(),
		FeedbackCount: rep.FeedbackCount.String(),
		AverageRating: average,
	}, nil
}

// formatScaled renders a value scaled by 100 with exactly two decimals.
func formatScaled(v *big.Int) string {
	whole, frac := new(big.Int).QuoRem(v, big.NewInt(100), new(big.Int))
	return fmt.Sprintf("%s.%02d", whole.String(), frac.Int64())
}

func (s *Service) observeFailure(err error) {
	if apperr.Is(err, apperr.KindChainRejection) {
		s.metrics.ObserveFeedbackSubmission(metrics.ResultRejected)
		return
	}
	s.metrics.ObserveFeedbackSubmission(metrics.ResultFailed)
}
