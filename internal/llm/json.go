package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Extraction failure modes, distinguishable by the caller.
var (
	ErrNoTextContent = errors.New("no text content in model response")
	ErrNoJSON        = errors.New("no JSON object found in model response")
	ErrMalformedJSON = errors.New("malformed JSON in model response")
)

// FirstJSONObject returns the first balanced JSON object embedded in text,
// tolerating surrounding prose. String literals and escapes are respected so
// braces inside values don't confuse the scan.
func FirstJSONObject(text string) ([]byte, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return []byte(text[start : i+1]), nil
			}
		}
	}
	return nil, ErrNoJSON
}

var (
	payrollNumericKeys = []string{
		"month", "year", "grossSalary", "netSalary", "totalDeductions",
		"workDays", "workHours", "hourlyRate", "overtimeHours",
		"vacationDays", "sickDays", "vacationBalance", "bankTransferAmount",
	}
	lineItemNumericKeys = []string{"quantity", "rate", "percent", "amount"}
	employeeStringKeys  = []string{"nationalId", "bankAccount", "bankBranch"}
)

// NormalizeRecordJSON coerces a raw extraction payload toward the typed
// record shape: numeric fields given as strings become numbers, blank and
// "null" strings become nulls, and identifier fields given as numbers become
// strings. The model is prompted for exact types but does not always comply.
func NormalizeRecordJSON(raw []byte) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	if emp, ok := m["employee"].(map[string]any); ok {
		for _, k := range employeeStringKeys {
			if v, ok := emp[k]; ok {
				emp[k] = coerceString(v)
			}
		}
		if v, ok := emp["taxCreditPoints"]; ok {
			emp["taxCreditPoints"] = coerceNumber(v)
		}
	}
	if pr, ok := m["payroll"].(map[string]any); ok {
		for _, k := range payrollNumericKeys {
			if v, ok := pr[k]; ok {
				pr[k] = coerceNumber(v)
			}
		}
	}
	for _, list := range []string{"earnings", "deductions", "benefits"} {
		items, ok := m[list].([]any)
		if !ok {
			continue
		}
		for _, it := range items {
			item, ok := it.(map[string]any)
			if !ok {
				continue
			}
			for _, k := range lineItemNumericKeys {
				if v, ok := item[k]; ok {
					item[k] = coerceNumber(v)
				}
			}
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return out, nil
}

// coerceNumber maps a loosely typed value to float64 or nil, never NaN.
func coerceNumber(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return t
	case bool:
		return nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.EqualFold(s, "null") {
			return nil
		}
		// strip thousands separators and currency marks seen in payslips
		s = strings.NewReplacer(",", "", "₪", "", " ", "").Replace(s)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return f
	default:
		return nil
	}
}

func coerceString(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.EqualFold(s, "null") {
			return nil
		}
		return s
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return nil
	}
}
