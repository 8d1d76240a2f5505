package services

import (
	"context"
	"fmt"
	"log/slog"

	"taxprep/internal/core"
	"taxprep/internal/filing"
	"taxprep/internal/importer"
	"taxprep/internal/store"
	"taxprep/internal/tax"
)

// CompletionPublisher announces completed returns to the calculation worker.
type CompletionPublisher interface {
	PublishReturnCompleted(ctx context.Context, id, version int64) error
	Close() error
}

// ReturnService orchestrates return operations across the store and AMQP.
// Section updates follow a read-modify-write cycle guarded by the record
// version the caller presents.
type ReturnService struct {
	store     store.Store
	publisher CompletionPublisher
}

func NewReturnService(st store.Store, publisher CompletionPublisher) *ReturnService {
	return &ReturnService{
		store:     st,
		publisher: publisher,
	}
}

func (s *ReturnService) CreateReturn(ctx context.Context, taxYear int) (*core.TaxRecord, error) {
	if _, ok := tax.ForYear(taxYear); !ok {
		return nil, fmt.Errorf("%w: %d", tax.ErrUnsupportedYear, taxYear)
	}
	return s.store.CreateReturn(ctx, taxYear)
}

func (s *ReturnService) GetReturn(ctx context.Context, id int64) (*core.TaxRecord, error) {
	return s.store.GetReturn(ctx, id)
}

func (s *ReturnService) ListReturns(ctx context.Context, taxYear int) ([]*core.TaxRecord, error) {
	return s.store.ListReturns(ctx, taxYear)
}

func (s *ReturnService) DeleteReturn(ctx context.Context, id int64) error {
	return s.store.DeleteReturn(ctx, id)
}

// UpdatePersonal stores the filer's personal information and re-resolves the
// filing status from it. An empty preference is valid for unmarried filers.
func (s *ReturnService) UpdatePersonal(ctx context.Context, id, version int64, p core.PersonalInformation, pref filing.Preference) (*core.TaxRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	status, err := filing.Resolve(filing.AnswersFromPersonal(p, pref))
	if err != nil {
		return nil, err
	}

	return s.updateSection(ctx, id, version, func(rec *core.TaxRecord) {
		rec.Personal = p
		rec.FilingStatus = status
	})
}

func (s *ReturnService) UpdateIncome(ctx context.Context, id, version int64, income core.Income) (*core.TaxRecord, error) {
	if err := income.Validate(); err != nil {
		return nil, err
	}
	return s.updateSection(ctx, id, version, func(rec *core.TaxRecord) {
		rec.Income = income
	})
}

func (s *ReturnService) UpdateAdjustments(ctx context.Context, id, version int64, adj core.Adjustments) (*core.TaxRecord, error) {
	if err := adj.Validate(); err != nil {
		return nil, err
	}
	return s.updateSection(ctx, id, version, func(rec *core.TaxRecord) {
		rec.Adjustments = adj
	})
}

func (s *ReturnService) UpdateDeductions(ctx context.Context, id, version int64, ded core.Deductions) (*core.TaxRecord, error) {
	if err := ded.Validate(); err != nil {
		return nil, err
	}
	return s.updateSection(ctx, id, version, func(rec *core.TaxRecord) {
		rec.Deductions = ded
	})
}

// UpdateCredits stores the credit lines and the other-taxes amount together;
// both feed the post-credit stage of the calculation.
func (s *ReturnService) UpdateCredits(ctx context.Context, id, version int64, credits core.TaxCredits, otherTaxes core.Money) (*core.TaxRecord, error) {
	if err := credits.Validate(); err != nil {
		return nil, err
	}
	if otherTaxes.Cents < 0 {
		return nil, core.ErrInvalidAmount
	}
	return s.updateSection(ctx, id, version, func(rec *core.TaxRecord) {
		rec.Credits = credits
		rec.OtherTaxes = otherTaxes
	})
}

func (s *ReturnService) UpdatePayments(ctx context.Context, id, version int64, payments core.Payments) (*core.TaxRecord, error) {
	if err := payments.Validate(); err != nil {
		return nil, err
	}
	return s.updateSection(ctx, id, version, func(rec *core.TaxRecord) {
		rec.Payments = payments
	})
}

// ImportBrokerage validates a brokerage statement and appends its capital
// gain items to the return's income section.
func (s *ReturnService) ImportBrokerage(ctx context.Context, id, version int64, stmt importer.Statement) (*core.TaxRecord, error) {
	if err := stmt.Validate(); err != nil {
		return nil, err
	}
	items, err := stmt.IncomeItems()
	if err != nil {
		return nil, err
	}

	rec, err := s.updateSection(ctx, id, version, func(rec *core.TaxRecord) {
		rec.Income.Items = append(rec.Income.Items, items...)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Imported brokerage statement",
		"id", id,
		"brokerage", stmt.Brokerage,
		"transactions", len(stmt.Transactions),
		"net_gain_loss", stmt.TotalNetGainLoss)
	return rec, nil
}

// Calculate runs the engine against the current record without persisting
// anything. Snapshots are the worker's job.
func (s *ReturnService) Calculate(ctx context.Context, id int64) (core.CalculatedResults, error) {
	rec, err := s.store.GetReturn(ctx, id)
	if err != nil {
		return core.CalculatedResults{}, err
	}
	return tax.Calculate(rec)
}

// CompleteReturn locks the record and tells the worker to snapshot it. A
// publish failure does not fail the request; the worker's sweep picks the
// return up later.
func (s *ReturnService) CompleteReturn(ctx context.Context, id int64) (*core.TaxRecord, error) {
	rec, err := s.store.GetReturn(ctx, id)
	if err != nil {
		return nil, err
	}

	// Completing requires a calculable record; surface engine errors now
	// rather than from the worker's logs.
	if _, err := tax.Calculate(rec); err != nil {
		return nil, err
	}

	completed, err := s.store.CompleteReturn(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.publishCompletion(ctx, completed.ID, completed.Version); err != nil {
		slog.ErrorContext(ctx, "Failed to publish completion message",
			"id", completed.ID, "error", err)
		// Don't fail the request - the return is completed locally
	}

	return completed, nil
}

func (s *ReturnService) GetResults(ctx context.Context, id int64) (core.CalculatedResults, error) {
	return s.store.GetResults(ctx, id)
}

func (s *ReturnService) updateSection(ctx context.Context, id, version int64, mutate func(*core.TaxRecord)) (*core.TaxRecord, error) {
	rec, err := s.store.GetReturn(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Version != version {
		return nil, store.ErrVersionConflict
	}

	mutate(rec)
	return s.store.UpdateReturn(ctx, rec)
}

func (s *ReturnService) publishCompletion(ctx context.Context, id, version int64) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping completion message")
		return nil
	}
	return s.publisher.PublishReturnCompleted(ctx, id, version)
}

// Close closes the AMQP connection. The store is closed by whoever built it.
func (s *ReturnService) Close() error {
	var errs []error

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close return service: %v", errs)
	}

	return nil
}
