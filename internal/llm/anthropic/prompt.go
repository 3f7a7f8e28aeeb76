package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/paysliphq/payslips-backend/internal/entity"
)

const extractionPrompt = `You are a payslip analyst for Israeli payslips (Hebrew, RTL layout).
Analyze the payslip in the attached document and extract everything into the following JSON structure.
Important: return ONLY valid JSON, with no additional text.

{
  "employee": {
    "name": "full employee name",
    "nationalId": "national id number (9 digits)",
    "department": "department or null",
    "role": "role or null",
    "startDate": "employment start date as YYYY-MM-DD or null",
    "maritalStatus": "marital status or null",
    "taxCreditPoints": "tax credit points as a number or null",
    "bankAccount": "bank account number or null",
    "bankBranch": "bank branch or null"
  },
  "payroll": {
    "month": "month number 1-12",
    "year": "year as a number",
    "grossSalary": "gross salary",
    "netSalary": "net salary (the amount payable)",
    "totalDeductions": "total deductions",
    "workDays": "work days or null",
    "workHours": "work hours or null",
    "hourlyRate": "hourly rate or null",
    "overtimeHours": "overtime hours or null",
    "vacationDays": "vacation days used or null",
    "sickDays": "sick days or null",
    "vacationBalance": "vacation balance or null",
    "bankTransferAmount": "bank transfer amount or null"
  },
  "earnings": [
    {"name": "component name (e.g. base salary, overtime 125%, bonus)", "quantity": null, "rate": null, "percent": null, "amount": 0}
  ],
  "deductions": [
    {"name": "deduction name (e.g. income tax, national insurance, health tax)", "quantity": null, "rate": null, "percent": null, "amount": 0}
  ],
  "benefits": [
    {"name": "employer contribution name (e.g. employer pension, study fund, severance)", "quantity": null, "rate": null, "percent": null, "amount": 0}
  ]
}

Rules:
1. All monetary values must be numbers, not strings.
2. If a field does not appear on the payslip, use null.
3. Separate earnings, deductions, and employer benefits.
4. The month and year usually appear in the top header.`

const assessmentPreamble = `You are a payroll auditor. Review the extracted payslip record below for plausibility:
implausible salary magnitudes, inconsistent component breakdowns, suspicious identity fields,
or values that diverge sharply from the employee's prior month.
Return ONLY a JSON object of the form {"issues": [{"severity": "error|warning|info", "field": "...", "message": "..."}]}.
Return {"issues": []} when nothing stands out.`

func buildAssessmentPrompt(rec entity.ExtractionRecord, prior *entity.PayrollContext) string {
	var b strings.Builder
	b.WriteString(assessmentPreamble)
	b.WriteString("\n\nExtracted record:\n")
	recJSON, _ := json.Marshal(rec)
	b.Write(recJSON)
	if prior != nil {
		b.WriteString("\n\nPrior month for this employee:\n")
		priorJSON, _ := json.Marshal(prior)
		b.Write(priorJSON)
	}
	return b.String()
}
