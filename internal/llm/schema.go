package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildPayslipJSONSchema returns the JSON-Schema the extraction payload must
// satisfy after normalization. It is deliberately loose about optional values
// (number-or-null) and strict only about the record's overall shape.
func BuildPayslipJSONSchema() map[string]any {
	lineItem := map[string]any{
		"type":     "object",
		"required": []string{"name", "amount"},
		"properties": map[string]any{
			"name":     map[string]any{"type": "string", "minLength": 1},
			"quantity": nullableNumber(),
			"rate":     nullableNumber(),
			"percent":  nullableNumber(),
			"amount":   map[string]any{"type": "number"},
		},
	}
	lineItems := map[string]any{"type": "array", "items": lineItem}

	return map[string]any{
		"type":     "object",
		"required": []string{"employee", "payroll"},
		"properties": map[string]any{
			// name and nationalId stay nullable here: a record missing them
			// must still reach validation, which flags them as errors for
			// the reviewer instead of failing the page outright.
			"employee": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":            nullableString(),
					"nationalId":      nullableString(),
					"department":      nullableString(),
					"role":            nullableString(),
					"startDate":       nullableString(),
					"maritalStatus":   nullableString(),
					"taxCreditPoints": nullableNumber(),
					"bankAccount":     nullableString(),
					"bankBranch":      nullableString(),
				},
			},
			"payroll": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"month":              nullableNumber(),
					"year":               nullableNumber(),
					"grossSalary":        nullableNumber(),
					"netSalary":          nullableNumber(),
					"totalDeductions":    nullableNumber(),
					"workDays":           nullableNumber(),
					"workHours":          nullableNumber(),
					"hourlyRate":         nullableNumber(),
					"overtimeHours":      nullableNumber(),
					"vacationDays":       nullableNumber(),
					"sickDays":           nullableNumber(),
					"vacationBalance":    nullableNumber(),
					"bankTransferAmount": nullableNumber(),
				},
			},
			"earnings":   lineItems,
			"deductions": lineItems,
			"benefits":   lineItems,
		},
	}
}

func nullableNumber() map[string]any {
	return map[string]any{"type": []string{"number", "null"}}
}

func nullableString() map[string]any {
	return map[string]any{"type": []string{"string", "null"}}
}

// ValidateJSONAgainstSchema validates data against schemaMap.
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
