package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/paysliphq/payslips-backend/constants"
)

// EmployeeFields is the employee sub-object of one extracted payslip.
// Only name and national id are required; everything else may be absent
// from the source document.
type EmployeeFields struct {
	Name            string   `json:"name"`
	NationalID      string   `json:"nationalId"`
	Department      *string  `json:"department"`
	Role            *string  `json:"role"`
	StartDate       *string  `json:"startDate"`
	MaritalStatus   *string  `json:"maritalStatus"`
	TaxCreditPoints *float64 `json:"taxCreditPoints"`
	BankAccount     *string  `json:"bankAccount"`
	BankBranch      *string  `json:"bankBranch"`
}

// PayrollFields is the payroll sub-object of one extracted payslip.
// Fields absent in the source surface as nil, never as zero.
type PayrollFields struct {
	Month              *int     `json:"month"`
	Year               *int     `json:"year"`
	GrossSalary        *float64 `json:"grossSalary"`
	NetSalary          *float64 `json:"netSalary"`
	TotalDeductions    *float64 `json:"totalDeductions"`
	WorkDays           *float64 `json:"workDays"`
	WorkHours          *float64 `json:"workHours"`
	HourlyRate         *float64 `json:"hourlyRate"`
	OvertimeHours      *float64 `json:"overtimeHours"`
	VacationDays       *float64 `json:"vacationDays"`
	SickDays           *float64 `json:"sickDays"`
	VacationBalance    *float64 `json:"vacationBalance"`
	BankTransferAmount *float64 `json:"bankTransferAmount"`
}

// SalaryLineItem is one named line within a payslip's earnings, deductions
// or employer benefits.
type SalaryLineItem struct {
	Name     string   `json:"name"`
	Quantity *float64 `json:"quantity"`
	Rate     *float64 `json:"rate"`
	Percent  *float64 `json:"percent"`
	Amount   float64  `json:"amount"`
}

// ExtractionRecord is the structured payroll data produced from one page,
// pending human review.
type ExtractionRecord struct {
	ID         uuid.UUID        `json:"id"`
	PageNumber int              `json:"pageNumber"`
	Employee   EmployeeFields   `json:"employee"`
	Payroll    PayrollFields    `json:"payroll"`
	Earnings   []SalaryLineItem `json:"earnings"`
	Deductions []SalaryLineItem `json:"deductions"`
	Benefits   []SalaryLineItem `json:"benefits"`
}

// StagedRecord is an ExtractionRecord held in the staging store together
// with its review state.
type StagedRecord struct {
	ID         uuid.UUID              `json:"id"`
	BatchID    uuid.UUID              `json:"batchId"`
	PageNumber int                    `json:"pageNumber"`
	Record     ExtractionRecord       `json:"record"`
	Status     constants.RecordStatus `json:"status"`
	CreatedAt  time.Time              `json:"createdAt"`
	ReviewedAt *time.Time             `json:"reviewedAt,omitempty"`
}

// ValidationIssue flags a problem found in one extracted record.
type ValidationIssue struct {
	Severity constants.Severity `json:"severity"`
	Field    string             `json:"field"`
	Message  string             `json:"message"`
}

// PayrollContext carries an employee's prior month totals, used as context
// for plausibility assessment.
type PayrollContext struct {
	Month           int      `json:"month"`
	Year            int      `json:"year"`
	GrossSalary     *float64 `json:"grossSalary"`
	NetSalary       *float64 `json:"netSalary"`
	TotalDeductions *float64 `json:"totalDeductions"`
}
