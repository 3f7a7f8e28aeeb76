package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paysliphq/payslips-backend/constants"
	"github.com/paysliphq/payslips-backend/internal/common"
	"github.com/paysliphq/payslips-backend/internal/entity"
)

const uniqueViolation = "23505"

// ApprovalRequest carries everything CommitApproval persists atomically.
type ApprovalRequest struct {
	BatchID     uuid.UUID
	RecordID    uuid.UUID
	Record      entity.ExtractionRecord
	ExtractedAt time.Time
}

// ApprovalResult reports one committed approval.
type ApprovalResult struct {
	PayrollID      uuid.UUID
	EmployeeID     uuid.UUID
	BatchCompleted bool
}

type PayrollRepository interface {
	// CommitApproval performs the whole approval in one transaction:
	// employee upsert, payroll insert, component inserts, record state
	// flip, and the batch completion check. Partial persistence is never
	// observable. A duplicate (employee, month, year) key surfaces as
	// ErrCommitConflict and leaves the record pending.
	CommitApproval(ctx context.Context, req ApprovalRequest) (*ApprovalResult, error)

	// MarkBatchCompletedIfDone flips the batch to completed when no
	// pending records remain. Used after skips.
	MarkBatchCompletedIfDone(ctx context.Context, batchID uuid.UUID) (bool, error)

	// PriorContext returns the employee's most recent payroll strictly
	// before (year, month), or nil when none exists.
	PriorContext(ctx context.Context, nationalID string, month, year int) (*entity.PayrollContext, error)

	ListWithEmployee(ctx context.Context, employeeID *uuid.UUID) ([]entity.PayrollWithEmployee, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*entity.PayrollDetail, error)
}

type payrollRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPayrollRepository(pool *pgxpool.Pool, logger *slog.Logger) PayrollRepository {
	return &payrollRepository{pool: pool, logger: logger}
}

func (r *payrollRepository) CommitApproval(ctx context.Context, req ApprovalRequest) (*ApprovalResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, common.WrapError(err, "begin approval transaction")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	emp := req.Record.Employee

	// Atomic lookup-or-create on the natural key. Name is always refreshed;
	// every other field keeps its stored value when the incoming one is null.
	var employeeID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO employees
			(name, national_id, department, role, start_date, marital_status,
			 tax_credit_points, bank_account, bank_branch)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (national_id) DO UPDATE SET
			name              = EXCLUDED.name,
			department        = COALESCE(EXCLUDED.department, employees.department),
			role              = COALESCE(EXCLUDED.role, employees.role),
			start_date        = COALESCE(EXCLUDED.start_date, employees.start_date),
			marital_status    = COALESCE(EXCLUDED.marital_status, employees.marital_status),
			tax_credit_points = COALESCE(EXCLUDED.tax_credit_points, employees.tax_credit_points),
			bank_account      = COALESCE(EXCLUDED.bank_account, employees.bank_account),
			bank_branch       = COALESCE(EXCLUDED.bank_branch, employees.bank_branch)
		 RETURNING id`,
		emp.Name, emp.NationalID, emp.Department, emp.Role, emp.StartDate,
		emp.MaritalStatus, emp.TaxCreditPoints, emp.BankAccount, emp.BankBranch,
	).Scan(&employeeID)
	if err != nil {
		r.logger.Error("employee upsert failed", "national_id", emp.NationalID, "error", err)
		return nil, common.WrapError(err, "upsert employee")
	}

	rawExtraction, err := json.Marshal(req.Record)
	if err != nil {
		return nil, common.WrapError(err, "encode raw extraction")
	}

	pr := req.Record.Payroll
	now := time.Now().UTC()
	var payrollID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO employee_payrolls
			(batch_id, employee_id, month, year, gross_salary, net_salary,
			 total_deductions, work_days, work_hours, hourly_rate, overtime_hours,
			 vacation_days, sick_days, vacation_balance, bank_transfer_amount,
			 page_number, raw_extraction, extracted_at, reviewed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 RETURNING id`,
		req.BatchID, employeeID, pr.Month, pr.Year, pr.GrossSalary, pr.NetSalary,
		pr.TotalDeductions, pr.WorkDays, pr.WorkHours, pr.HourlyRate, pr.OvertimeHours,
		pr.VacationDays, pr.SickDays, pr.VacationBalance, pr.BankTransferAmount,
		req.Record.PageNumber, rawExtraction, req.ExtractedAt, now,
	).Scan(&payrollID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			r.logger.Warn("commit.conflict",
				"batch_id", req.BatchID, "national_id", emp.NationalID,
				"month", pr.Month, "year", pr.Year,
			)
			return nil, common.ErrCommitConflict
		}
		r.logger.Error("payroll insert failed", "batch_id", req.BatchID, "error", err)
		return nil, common.WrapError(err, "insert payroll")
	}

	for _, group := range []struct {
		typ   constants.ComponentType
		items []entity.SalaryLineItem
	}{
		{constants.ComponentEarning, req.Record.Earnings},
		{constants.ComponentDeduction, req.Record.Deductions},
		{constants.ComponentBenefit, req.Record.Benefits},
	} {
		for _, item := range group.items {
			if _, err := tx.Exec(ctx,
				`INSERT INTO salary_components (payroll_id, type, name, quantity, rate, percent, amount)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				payrollID, group.typ, item.Name, item.Quantity, item.Rate, item.Percent, item.Amount,
			); err != nil {
				r.logger.Error("component insert failed", "payroll_id", payrollID, "error", err)
				return nil, common.WrapError(err, "insert salary component")
			}
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE extraction_records SET status = $1, reviewed_at = $2
		 WHERE id = $3 AND status = $4`,
		constants.RecordStatusApproved, now, req.RecordID, constants.RecordStatusPending,
	)
	if err != nil {
		return nil, common.WrapError(err, "mark record approved")
	}
	if tag.RowsAffected() == 0 {
		return nil, common.ErrRecordTerminal
	}

	completed, err := markCompletedIfDone(ctx, tx, req.BatchID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, common.WrapError(err, "commit approval")
	}

	r.logger.Info("commit.ok",
		"batch_id", req.BatchID,
		"payroll_id", payrollID,
		"employee_id", employeeID,
		"batch_completed", completed,
	)
	return &ApprovalResult{PayrollID: payrollID, EmployeeID: employeeID, BatchCompleted: completed}, nil
}

func (r *payrollRepository) MarkBatchCompletedIfDone(ctx context.Context, batchID uuid.UUID) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, common.WrapError(err, "begin completion check")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	completed, err := markCompletedIfDone(ctx, tx, batchID)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, common.WrapError(err, "commit completion check")
	}
	return completed, nil
}

func markCompletedIfDone(ctx context.Context, tx pgx.Tx, batchID uuid.UUID) (bool, error) {
	var pending int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM extraction_records WHERE batch_id = $1 AND status = $2`,
		batchID, constants.RecordStatusPending,
	).Scan(&pending); err != nil {
		return false, common.WrapError(err, "count pending records")
	}
	if pending > 0 {
		return false, nil
	}
	tag, err := tx.Exec(ctx,
		`UPDATE payroll_batches SET status = $1 WHERE id = $2 AND status = $3`,
		constants.BatchStatusCompleted, batchID, constants.BatchStatusReview,
	)
	if err != nil {
		return false, common.WrapError(err, "mark batch completed")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *payrollRepository) PriorContext(ctx context.Context, nationalID string, month, year int) (*entity.PayrollContext, error) {
	var pc entity.PayrollContext
	err := r.pool.QueryRow(ctx,
		`SELECT p.month, p.year, p.gross_salary, p.net_salary, p.total_deductions
		 FROM employee_payrolls p
		 JOIN employees e ON e.id = p.employee_id
		 WHERE e.national_id = $1 AND (p.year, p.month) < ($2, $3)
		 ORDER BY p.year DESC, p.month DESC
		 LIMIT 1`,
		nationalID, year, month,
	).Scan(&pc.Month, &pc.Year, &pc.GrossSalary, &pc.NetSalary, &pc.TotalDeductions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, common.WrapError(err, "load prior payroll context")
	}
	return &pc, nil
}

const payrollColumns = `p.id, p.batch_id, p.employee_id, p.month, p.year,
	p.gross_salary, p.net_salary, p.total_deductions, p.work_days, p.work_hours,
	p.hourly_rate, p.overtime_hours, p.vacation_days, p.sick_days,
	p.vacation_balance, p.bank_transfer_amount, p.page_number, p.extracted_at, p.reviewed_at`

func scanPayroll(row pgx.Row, p *entity.Payroll, extra ...any) error {
	dest := []any{&p.ID, &p.BatchID, &p.EmployeeID, &p.Month, &p.Year,
		&p.GrossSalary, &p.NetSalary, &p.TotalDeductions, &p.WorkDays, &p.WorkHours,
		&p.HourlyRate, &p.OvertimeHours, &p.VacationDays, &p.SickDays,
		&p.VacationBalance, &p.BankTransferAmount, &p.PageNumber, &p.ExtractedAt, &p.ReviewedAt}
	dest = append(dest, extra...)
	return row.Scan(dest...)
}

func (r *payrollRepository) ListWithEmployee(ctx context.Context, employeeID *uuid.UUID) ([]entity.PayrollWithEmployee, error) {
	q := `SELECT ` + payrollColumns + `, e.name, e.national_id, e.department
	      FROM employee_payrolls p
	      JOIN employees e ON e.id = p.employee_id`
	var args []any
	if employeeID != nil {
		q += ` WHERE p.employee_id = $1`
		args = append(args, *employeeID)
	}
	q += ` ORDER BY p.year DESC, p.month DESC`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		r.logger.Error("failed to list payrolls", "error", err)
		return nil, common.WrapError(err, "list payrolls")
	}
	defer rows.Close()

	var out []entity.PayrollWithEmployee
	for rows.Next() {
		var p entity.PayrollWithEmployee
		if err := scanPayroll(rows, &p.Payroll, &p.EmployeeName, &p.EmployeeNationalID, &p.EmployeeDepartment); err != nil {
			return nil, common.WrapError(err, "scan payroll")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *payrollRepository) GetDetail(ctx context.Context, id uuid.UUID) (*entity.PayrollDetail, error) {
	var detail entity.PayrollDetail
	row := r.pool.QueryRow(ctx,
		`SELECT `+payrollColumns+` FROM employee_payrolls p WHERE p.id = $1`, id)
	if err := scanPayroll(row, &detail.Payroll); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		r.logger.Error("failed to get payroll", "payroll_id", id, "error", err)
		return nil, common.WrapError(err, "get payroll")
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, payroll_id, type, name, quantity, rate, percent, amount
		 FROM salary_components WHERE payroll_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, common.WrapError(err, "list salary components")
	}
	defer rows.Close()

	for rows.Next() {
		var c entity.SalaryComponent
		if err := rows.Scan(&c.ID, &c.PayrollID, &c.Type, &c.Name, &c.Quantity, &c.Rate, &c.Percent, &c.Amount); err != nil {
			return nil, common.WrapError(err, "scan salary component")
		}
		switch c.Type {
		case constants.ComponentEarning:
			detail.Earnings = append(detail.Earnings, c)
		case constants.ComponentDeduction:
			detail.Deductions = append(detail.Deductions, c)
		case constants.ComponentBenefit:
			detail.Benefits = append(detail.Benefits, c)
		}
	}
	return &detail, rows.Err()
}
