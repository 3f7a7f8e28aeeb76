package validate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"github.com/paysliphq/payslips-backend/constants"
	"github.com/paysliphq/payslips-backend/internal/entity"
	"github.com/paysliphq/payslips-backend/internal/llm"
)

// Reconciliation tolerances, in currency units. These match the rounding
// slack observed in real payslips: component sums may drift by up to 1,
// gross minus deductions vs net by up to 5.
const (
	componentSumTolerance = 1.0
	netReconcileTolerance = 5.0
)

var nineDigits = regexp.MustCompile(`^\d{9}$`)

// Result is the merged outcome of both validation tiers. IsValid is false
// iff at least one error-severity issue is present; it is a UI signal only
// and never blocks commit.
type Result struct {
	Issues  []entity.ValidationIssue `json:"issues"`
	IsValid bool                     `json:"isValid"`
}

// Engine runs deterministic checks and merges best-effort advisory issues.
type Engine struct {
	assessor llm.Assessor
	logger   *slog.Logger
}

func NewEngine(assessor llm.Assessor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{assessor: assessor, logger: logger}
}

// Validate runs both tiers. Deterministic issues come first; advisory issues
// are appended. Advisory failure degrades silently to deterministic-only.
func (e *Engine) Validate(ctx context.Context, rec entity.ExtractionRecord, prior *entity.PayrollContext) Result {
	issues := Check(rec)

	if e.assessor != nil {
		advisory, err := e.assessor.Assess(ctx, rec, prior)
		if err != nil {
			e.logger.Warn("validate.advisory_unavailable", "page", rec.PageNumber, "error", err)
		} else {
			for _, iss := range advisory {
				if iss.Severity == "" && iss.Message == "" {
					continue
				}
				issues = append(issues, iss)
			}
		}
	}

	return Result{Issues: issues, IsValid: !hasError(issues)}
}

// Check runs the deterministic tier: pure arithmetic and format checks over
// one extracted record.
func Check(rec entity.ExtractionRecord) []entity.ValidationIssue {
	var issues []entity.ValidationIssue
	add := func(sev constants.Severity, field, msg string) {
		issues = append(issues, entity.ValidationIssue{Severity: sev, Field: field, Message: msg})
	}

	if strings.TrimSpace(rec.Employee.Name) == "" {
		add(constants.SeverityError, "employee.name", "employee name is missing")
	}
	if strings.TrimSpace(rec.Employee.NationalID) == "" {
		add(constants.SeverityError, "employee.nationalId", "national id is missing")
	} else if !nineDigits.MatchString(stripSeparators(rec.Employee.NationalID)) {
		add(constants.SeverityError, "employee.nationalId",
			fmt.Sprintf("national id %q is not 9 digits", rec.Employee.NationalID))
	}

	if rec.Payroll.Month == nil {
		add(constants.SeverityError, "payroll.month", "payroll month is missing")
	}
	if rec.Payroll.Year == nil {
		add(constants.SeverityError, "payroll.year", "payroll year is missing")
	}

	gross := rec.Payroll.GrossSalary
	net := rec.Payroll.NetSalary
	deductions := rec.Payroll.TotalDeductions

	if gross != nil && *gross < 0 {
		add(constants.SeverityError, "payroll.grossSalary", "gross salary is negative")
	}
	if net != nil && *net < 0 {
		add(constants.SeverityError, "payroll.netSalary", "net salary is negative")
	}
	if gross != nil && net != nil && *net > *gross {
		add(constants.SeverityError, "payroll.netSalary",
			fmt.Sprintf("net salary %.2f exceeds gross salary %.2f", *net, *gross))
	}

	if len(rec.Earnings) > 0 && gross != nil {
		sum := sumAmounts(rec.Earnings)
		if diff := math.Abs(sum - *gross); diff > componentSumTolerance {
			add(constants.SeverityWarning, "earnings",
				fmt.Sprintf("earning components sum to %.2f but gross salary is %.2f", sum, *gross))
		}
	}
	if len(rec.Deductions) > 0 && deductions != nil {
		sum := sumAmounts(rec.Deductions)
		if diff := math.Abs(sum - *deductions); diff > componentSumTolerance {
			add(constants.SeverityWarning, "deductions",
				fmt.Sprintf("deduction components sum to %.2f but total deductions is %.2f", sum, *deductions))
		}
	}
	if gross != nil && deductions != nil && net != nil {
		if diff := math.Abs(*gross - *deductions - *net); diff > netReconcileTolerance {
			add(constants.SeverityWarning, "payroll.netSalary",
				fmt.Sprintf("gross %.2f minus deductions %.2f does not reconcile with net %.2f", *gross, *deductions, *net))
		}
	}

	if gross != nil && net != nil && *gross == 0 && *net == 0 {
		add(constants.SeverityWarning, "payroll.grossSalary",
			"gross and net are both zero; this usually means the extraction failed")
	}

	return issues
}

func sumAmounts(items []entity.SalaryLineItem) float64 {
	var sum float64
	for _, it := range items {
		sum += it.Amount
	}
	return sum
}

func hasError(issues []entity.ValidationIssue) bool {
	for _, iss := range issues {
		if iss.Severity == constants.SeverityError {
			return true
		}
	}
	return false
}

// stripSeparators removes the separator characters that commonly appear
// inside printed national ids.
func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '‏', '‎':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
