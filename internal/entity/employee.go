package entity

import (
	"time"

	"github.com/google/uuid"
)

// Employee is the persisted employee row, keyed by national id across uploads.
type Employee struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	NationalID      string    `json:"nationalId"`
	Department      *string   `json:"department"`
	Role            *string   `json:"role"`
	StartDate       *string   `json:"startDate"`
	MaritalStatus   *string   `json:"maritalStatus"`
	TaxCreditPoints *float64  `json:"taxCreditPoints"`
	BankAccount     *string   `json:"bankAccount"`
	BankBranch      *string   `json:"bankBranch"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

// EmployeeListItem is an employee row with payroll aggregates for listings.
type EmployeeListItem struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	NationalID       string    `json:"nationalId"`
	Department       *string   `json:"department"`
	Role             *string   `json:"role"`
	Status           string    `json:"status"`
	StartDate        *string   `json:"startDate"`
	CreatedAt        time.Time `json:"createdAt"`
	LastPayrollMonth *int      `json:"lastPayrollMonth"`
	LastPayrollYear  *int      `json:"lastPayrollYear"`
	PayrollCount     int       `json:"payrollCount"`
}
