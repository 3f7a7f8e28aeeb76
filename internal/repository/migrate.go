package repository

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paysliphq/payslips-backend/internal/common"
)

// Idempotent DDL, applied in order at process start. Replaces the lazy
// per-request schema check the system previously relied on.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS payroll_batches (
		id UUID DEFAULT gen_random_uuid() PRIMARY KEY,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		file_name TEXT NOT NULL,
		status TEXT DEFAULT 'processing' NOT NULL,
		uploaded_at TIMESTAMPTZ DEFAULT NOW() NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS uploaded_files (
		id UUID DEFAULT gen_random_uuid() PRIMARY KEY,
		batch_id UUID REFERENCES payroll_batches(id) NOT NULL,
		file_name TEXT NOT NULL,
		file_data BYTEA NOT NULL,
		mime_type TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW() NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS employees (
		id UUID DEFAULT gen_random_uuid() PRIMARY KEY,
		name TEXT NOT NULL,
		national_id TEXT NOT NULL UNIQUE,
		department TEXT,
		role TEXT,
		start_date TEXT,
		marital_status TEXT,
		tax_credit_points NUMERIC,
		bank_account TEXT,
		bank_branch TEXT,
		status TEXT DEFAULT 'active' NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW() NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS employee_payrolls (
		id UUID DEFAULT gen_random_uuid() PRIMARY KEY,
		batch_id UUID REFERENCES payroll_batches(id) NOT NULL,
		employee_id UUID REFERENCES employees(id) NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		gross_salary NUMERIC,
		net_salary NUMERIC,
		total_deductions NUMERIC,
		work_days NUMERIC,
		work_hours NUMERIC,
		hourly_rate NUMERIC,
		overtime_hours NUMERIC,
		vacation_days NUMERIC,
		sick_days NUMERIC,
		vacation_balance NUMERIC,
		bank_transfer_amount NUMERIC,
		page_number INTEGER,
		raw_extraction JSONB,
		extracted_at TIMESTAMPTZ,
		reviewed_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_employee_payroll_unique
		ON employee_payrolls (employee_id, month, year)`,
	`CREATE TABLE IF NOT EXISTS salary_components (
		id UUID DEFAULT gen_random_uuid() PRIMARY KEY,
		payroll_id UUID REFERENCES employee_payrolls(id) NOT NULL,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		quantity NUMERIC,
		rate NUMERIC,
		percent NUMERIC,
		amount NUMERIC NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS extraction_records (
		id UUID DEFAULT gen_random_uuid() PRIMARY KEY,
		batch_id UUID REFERENCES payroll_batches(id) NOT NULL,
		page_number INTEGER NOT NULL,
		payload JSONB NOT NULL,
		status TEXT DEFAULT 'pending' NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW() NOT NULL,
		reviewed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_extraction_records_batch
		ON extraction_records (batch_id, status)`,
}

// Migrate applies the schema. Safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("applying schema migrations", "statements", len(migrations))
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			logger.Error("migration failed", "statement", i, "error", err)
			return common.WrapError(err, "apply schema")
		}
	}
	logger.Info("schema up to date")
	return nil
}
