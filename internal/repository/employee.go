package repository

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paysliphq/payslips-backend/internal/common"
	"github.com/paysliphq/payslips-backend/internal/entity"
)

// EmployeeFilter narrows employee listings.
type EmployeeFilter struct {
	Search     string // matches name or national id
	Department string
	Status     string
}

type EmployeeRepository interface {
	GetByNationalID(ctx context.Context, nationalID string) (*entity.Employee, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Employee, error)
	List(ctx context.Context, filter EmployeeFilter) ([]entity.EmployeeListItem, error)
}

type employeeRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewEmployeeRepository(pool *pgxpool.Pool, logger *slog.Logger) EmployeeRepository {
	return &employeeRepository{pool: pool, logger: logger}
}

const employeeColumns = `id, name, national_id, department, role, start_date,
	marital_status, tax_credit_points, bank_account, bank_branch, status, created_at`

func scanEmployee(row pgx.Row) (*entity.Employee, error) {
	var e entity.Employee
	err := row.Scan(&e.ID, &e.Name, &e.NationalID, &e.Department, &e.Role, &e.StartDate,
		&e.MaritalStatus, &e.TaxCreditPoints, &e.BankAccount, &e.BankBranch, &e.Status, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *employeeRepository) GetByNationalID(ctx context.Context, nationalID string) (*entity.Employee, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE national_id = $1`, nationalID)
	e, err := scanEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to get employee by national id", "error", err)
		return nil, common.WrapError(err, "get employee")
	}
	return e, nil
}

func (r *employeeRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Employee, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id)
	e, err := scanEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to get employee", "employee_id", id, "error", err)
		return nil, common.WrapError(err, "get employee")
	}
	return e, nil
}

func (r *employeeRepository) List(ctx context.Context, filter EmployeeFilter) ([]entity.EmployeeListItem, error) {
	q := `SELECT e.id, e.name, e.national_id, e.department, e.role, e.status, e.start_date, e.created_at,
	             MAX(p.month), MAX(p.year), COUNT(p.id)
	      FROM employees e
	      LEFT JOIN employee_payrolls p ON p.employee_id = e.id`

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		p := arg("%" + s + "%")
		conds = append(conds, "(e.name ILIKE "+p+" OR e.national_id LIKE "+p+")")
	}
	if filter.Department != "" {
		conds = append(conds, "e.department = "+arg(filter.Department))
	}
	if filter.Status != "" {
		conds = append(conds, "e.status = "+arg(filter.Status))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " GROUP BY e.id ORDER BY e.name"

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		r.logger.Error("failed to list employees", "error", err)
		return nil, common.WrapError(err, "list employees")
	}
	defer rows.Close()

	var out []entity.EmployeeListItem
	for rows.Next() {
		var item entity.EmployeeListItem
		if err := rows.Scan(&item.ID, &item.Name, &item.NationalID, &item.Department, &item.Role,
			&item.Status, &item.StartDate, &item.CreatedAt,
			&item.LastPayrollMonth, &item.LastPayrollYear, &item.PayrollCount); err != nil {
			return nil, common.WrapError(err, "scan employee")
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
