package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/paysliphq/payslips-backend/constants"
)

// Payroll is one persisted payslip, unique per (employee, month, year).
type Payroll struct {
	ID                 uuid.UUID  `json:"id"`
	BatchID            uuid.UUID  `json:"batchId"`
	EmployeeID         uuid.UUID  `json:"employeeId"`
	Month              int        `json:"month"`
	Year               int        `json:"year"`
	GrossSalary        *float64   `json:"grossSalary"`
	NetSalary          *float64   `json:"netSalary"`
	TotalDeductions    *float64   `json:"totalDeductions"`
	WorkDays           *float64   `json:"workDays"`
	WorkHours          *float64   `json:"workHours"`
	HourlyRate         *float64   `json:"hourlyRate"`
	OvertimeHours      *float64   `json:"overtimeHours"`
	VacationDays       *float64   `json:"vacationDays"`
	SickDays           *float64   `json:"sickDays"`
	VacationBalance    *float64   `json:"vacationBalance"`
	BankTransferAmount *float64   `json:"bankTransferAmount"`
	PageNumber         *int       `json:"pageNumber"`
	ExtractedAt        *time.Time `json:"extractedAt"`
	ReviewedAt         *time.Time `json:"reviewedAt"`
}

// SalaryComponent is one persisted line item belonging to a payroll.
type SalaryComponent struct {
	ID        uuid.UUID               `json:"id"`
	PayrollID uuid.UUID               `json:"payrollId"`
	Type      constants.ComponentType `json:"type"`
	Name      string                  `json:"name"`
	Quantity  *float64                `json:"quantity"`
	Rate      *float64                `json:"rate"`
	Percent   *float64                `json:"percent"`
	Amount    float64                 `json:"amount"`
}

// PayrollWithEmployee joins a payroll with its employee for listings.
type PayrollWithEmployee struct {
	Payroll
	EmployeeName       string  `json:"employeeName"`
	EmployeeNationalID string  `json:"employeeNationalId"`
	EmployeeDepartment *string `json:"employeeDepartment"`
}

// PayrollDetail is one payroll with its components grouped by type.
type PayrollDetail struct {
	Payroll
	Earnings   []SalaryComponent `json:"earnings"`
	Deductions []SalaryComponent `json:"deductions"`
	Benefits   []SalaryComponent `json:"benefits"`
}
