package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"taxprep/internal/core"
	"taxprep/internal/store"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists tax returns and their calculated-results
// snapshots. It implements store.Store.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const returnColumns = `id, tax_year, state, filing_status, personal, income,
	adjustments, deductions, credits, other_taxes_cents, withholding_cents,
	estimated_cents, version, created_at, updated_at`

func (r *SQLiteRepository) CreateReturn(ctx context.Context, taxYear int) (*core.TaxRecord, error) {
	rec := &core.TaxRecord{TaxYear: taxYear, State: core.InProgress, Version: 1}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO returns (tax_year, state, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		taxYear, string(core.InProgress), now, now)
	if err != nil {
		return nil, fmt.Errorf("insert return: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	slog.InfoContext(ctx, "Return created", "id", id, "tax_year", taxYear)

	rec.ID = id
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return rec, nil
}

func (r *SQLiteRepository) GetReturn(ctx context.Context, id int64) (*core.TaxRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+returnColumns+`
		FROM returns
		WHERE id = ? AND deleted_at IS NULL`, id)
	return scanReturn(row)
}

func (r *SQLiteRepository) ListReturns(ctx context.Context, taxYear int) ([]*core.TaxRecord, error) {
	query := `SELECT ` + returnColumns + ` FROM returns WHERE deleted_at IS NULL`
	args := []any{}
	if taxYear != 0 {
		query += ` AND tax_year = ?`
		args = append(args, taxYear)
	}
	query += ` ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list returns: %w", err)
	}
	defer rows.Close()

	var out []*core.TaxRecord
	for rows.Next() {
		rec, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateReturn(ctx context.Context, rec *core.TaxRecord) (*core.TaxRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	current, err := r.GetReturn(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if current.State == core.Completed {
		return nil, store.ErrCompleted
	}

	personal, income, adjustments, deductions, credits, err := marshalSections(rec)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE returns SET
			filing_status = ?, personal = ?, income = ?, adjustments = ?,
			deductions = ?, credits = ?, other_taxes_cents = ?,
			withholding_cents = ?, estimated_cents = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND deleted_at IS NULL AND state != ?`,
		string(rec.FilingStatus), personal, income, adjustments, deductions, credits,
		rec.OtherTaxes.Cents, rec.Payments.Withholding.Cents, rec.Payments.EstimatedPayments.Cents,
		now, rec.ID, rec.Version, string(core.Completed))
	if err != nil {
		return nil, fmt.Errorf("update return: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// The row moved under us between the read and the write.
		return nil, store.ErrVersionConflict
	}

	return r.GetReturn(ctx, rec.ID)
}

func (r *SQLiteRepository) DeleteReturn(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE returns SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("delete return: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	slog.InfoContext(ctx, "Return soft deleted", "id", id)
	return nil
}

func (r *SQLiteRepository) CompleteReturn(ctx context.Context, id int64) (*core.TaxRecord, error) {
	current, err := r.GetReturn(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.State == core.Completed {
		return nil, store.ErrCompleted
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE returns SET state = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL AND state = ?`,
		string(core.Completed), time.Now().UTC(), id, string(core.InProgress))
	if err != nil {
		return nil, fmt.Errorf("complete return: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, store.ErrCompleted
	}

	slog.InfoContext(ctx, "Return completed", "id", id)
	return r.GetReturn(ctx, id)
}

func (r *SQLiteRepository) SaveResults(ctx context.Context, returnID, version int64, results core.CalculatedResults) error {
	if _, err := r.GetReturn(ctx, returnID); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calculated_results (
			return_id, version, tax_year, filing_status,
			total_income_cents, adjustments_cents, agi_cents, deductions_cents,
			taxable_income_cents, federal_tax_cents, credits_cents,
			additional_taxes_cents, tax_due_cents, payments_cents,
			refund_cents, owed_cents, calculated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(return_id) DO UPDATE SET
			version = excluded.version,
			tax_year = excluded.tax_year,
			filing_status = excluded.filing_status,
			total_income_cents = excluded.total_income_cents,
			adjustments_cents = excluded.adjustments_cents,
			agi_cents = excluded.agi_cents,
			deductions_cents = excluded.deductions_cents,
			taxable_income_cents = excluded.taxable_income_cents,
			federal_tax_cents = excluded.federal_tax_cents,
			credits_cents = excluded.credits_cents,
			additional_taxes_cents = excluded.additional_taxes_cents,
			tax_due_cents = excluded.tax_due_cents,
			payments_cents = excluded.payments_cents,
			refund_cents = excluded.refund_cents,
			owed_cents = excluded.owed_cents,
			calculated_at = excluded.calculated_at`,
		returnID, version, results.TaxYear, string(results.FilingStatus),
		results.TotalIncome.Cents, results.Adjustments.Cents,
		results.AdjustedGrossIncome.Cents, results.Deductions.Cents,
		results.TaxableIncome.Cents, results.FederalTax.Cents,
		results.Credits.Cents, results.AdditionalTaxes.Cents,
		results.TaxDue.Cents, results.Payments.Cents,
		results.RefundAmount.Cents, results.AmountOwed.Cents,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save results: %w", err)
	}

	slog.InfoContext(ctx, "Results snapshot saved",
		"return_id", returnID,
		"version", version,
		"tax_due_cents", results.TaxDue.Cents)
	return nil
}

func (r *SQLiteRepository) GetResults(ctx context.Context, returnID int64) (core.CalculatedResults, error) {
	var (
		results core.CalculatedResults
		status  string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT cr.tax_year, cr.filing_status, cr.total_income_cents,
			cr.adjustments_cents, cr.agi_cents, cr.deductions_cents,
			cr.taxable_income_cents, cr.federal_tax_cents, cr.credits_cents,
			cr.additional_taxes_cents, cr.tax_due_cents, cr.payments_cents,
			cr.refund_cents, cr.owed_cents, cr.calculated_at
		FROM calculated_results cr
		JOIN returns r ON r.id = cr.return_id
		WHERE cr.return_id = ? AND r.deleted_at IS NULL`, returnID).Scan(
		&results.TaxYear, &status, &results.TotalIncome.Cents,
		&results.Adjustments.Cents, &results.AdjustedGrossIncome.Cents,
		&results.Deductions.Cents, &results.TaxableIncome.Cents,
		&results.FederalTax.Cents, &results.Credits.Cents,
		&results.AdditionalTaxes.Cents, &results.TaxDue.Cents,
		&results.Payments.Cents, &results.RefundAmount.Cents,
		&results.AmountOwed.Cents, &results.CalculatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CalculatedResults{}, store.ErrNoResults
	}
	if err != nil {
		return core.CalculatedResults{}, fmt.Errorf("get results: %w", err)
	}
	results.FilingStatus = core.FilingStatus(status)
	return results, nil
}

func (r *SQLiteRepository) ListCompletedWithoutResults(ctx context.Context, limit int) ([]*core.TaxRecord, error) {
	query := `
		SELECT ` + returnColumns + `
		FROM returns r
		WHERE r.deleted_at IS NULL AND r.state = ?
			AND NOT EXISTS (
				SELECT 1 FROM calculated_results cr
				WHERE cr.return_id = r.id AND cr.version = r.version
			)
		ORDER BY r.id`
	args := []any{string(core.Completed)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completed without results: %w", err)
	}
	defer rows.Close()

	var out []*core.TaxRecord
	for rows.Next() {
		rec, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReturn(row rowScanner) (*core.TaxRecord, error) {
	var (
		rec          core.TaxRecord
		state        string
		filingStatus string
		personal     []byte
		income       []byte
		adjustments  []byte
		deductions   []byte
		credits      []byte
	)
	err := row.Scan(
		&rec.ID, &rec.TaxYear, &state, &filingStatus,
		&personal, &income, &adjustments, &deductions, &credits,
		&rec.OtherTaxes.Cents, &rec.Payments.Withholding.Cents,
		&rec.Payments.EstimatedPayments.Cents,
		&rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan return: %w", err)
	}

	rec.State = core.ReturnState(state)
	rec.FilingStatus = core.FilingStatus(filingStatus)
	for _, col := range []struct {
		data []byte
		dst  any
	}{
		{personal, &rec.Personal},
		{income, &rec.Income},
		{adjustments, &rec.Adjustments},
		{deductions, &rec.Deductions},
		{credits, &rec.Credits},
	} {
		if len(col.data) == 0 {
			continue
		}
		if err := json.Unmarshal(col.data, col.dst); err != nil {
			return nil, fmt.Errorf("decode return %d section: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func marshalSections(rec *core.TaxRecord) (personal, income, adjustments, deductions, credits []byte, err error) {
	if personal, err = json.Marshal(rec.Personal); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("encode personal: %w", err)
	}
	if income, err = json.Marshal(rec.Income); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("encode income: %w", err)
	}
	if adjustments, err = json.Marshal(rec.Adjustments); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("encode adjustments: %w", err)
	}
	if deductions, err = json.Marshal(rec.Deductions); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("encode deductions: %w", err)
	}
	if credits, err = json.Marshal(rec.Credits); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("encode credits: %w", err)
	}
	return personal, income, adjustments, deductions, credits, nil
}
