package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paysliphq/payslips-backend/constants"
	"github.com/paysliphq/payslips-backend/internal/entity"
	"github.com/paysliphq/payslips-backend/internal/llm"
)

// Extract implements llm.Extractor: one page image or single-page PDF in,
// one structured payslip record out.
func (c *Client) Extract(ctx context.Context, page entity.Page) (entity.ExtractionRecord, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"page", page.Number,
		"media_type", page.MediaType,
		"bytes", len(page.Data),
	)

	body := map[string]any{
		"model":      c.cfg.Model,
		"max_tokens": c.cfg.MaxTokens,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					pageContentBlock(page),
					{"type": "text", "text": extractionPrompt},
				},
			},
		},
	}

	text, err := c.complete(ctx, rid, body)
	if err != nil {
		c.logger.Error("extract.call_failed",
			"req_id", rid, "page", page.Number, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.ExtractionRecord{}, err
	}

	raw, err := llm.FirstJSONObject(text)
	if err != nil {
		c.logger.Error("extract.no_json", "req_id", rid, "page", page.Number, "text_len", len(text))
		return entity.ExtractionRecord{}, err
	}

	cleaned, err := llm.NormalizeRecordJSON(raw)
	if err != nil {
		c.logger.Error("extract.normalize_failed", "req_id", rid, "page", page.Number, "error", err)
		return entity.ExtractionRecord{}, err
	}

	if err := llm.ValidateJSONAgainstSchema(llm.BuildPayslipJSONSchema(), cleaned); err != nil {
		c.logger.Error("extract.schema_validation_failed",
			"req_id", rid, "page", page.Number, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.ExtractionRecord{}, fmt.Errorf("%w: %v", llm.ErrMalformedJSON, err)
	}

	var rec entity.ExtractionRecord
	if err := json.Unmarshal(cleaned, &rec); err != nil {
		c.logger.Error("extract.unmarshal_failed", "req_id", rid, "page", page.Number, "error", err)
		return entity.ExtractionRecord{}, fmt.Errorf("%w: %v", llm.ErrMalformedJSON, err)
	}
	rec.PageNumber = page.Number

	c.logger.Info("extract.ok",
		"req_id", rid,
		"page", page.Number,
		"employee", rec.Employee.Name,
		"national_id", rec.Employee.NationalID,
		"earnings", len(rec.Earnings),
		"deductions", len(rec.Deductions),
		"benefits", len(rec.Benefits),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

// Assess implements llm.Assessor. Callers treat failures as advisory only.
func (c *Client) Assess(ctx context.Context, rec entity.ExtractionRecord, prior *entity.PayrollContext) ([]entity.ValidationIssue, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("assess.start", "req_id", rid, "page", rec.PageNumber, "has_prior", prior != nil)

	body := map[string]any{
		"model":      c.cfg.Model,
		"max_tokens": c.cfg.MaxTokens,
		"messages": []map[string]any{
			{"role": "user", "content": buildAssessmentPrompt(rec, prior)},
		},
	}

	text, err := c.complete(ctx, rid, body)
	if err != nil {
		c.logger.Warn("assess.call_failed", "req_id", rid, "error", err)
		return nil, err
	}

	raw, err := llm.FirstJSONObject(text)
	if err != nil {
		c.logger.Warn("assess.no_json", "req_id", rid, "text_len", len(text))
		return nil, err
	}

	var out struct {
		Issues []entity.ValidationIssue `json:"issues"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Warn("assess.unmarshal_failed", "req_id", rid, "error", err)
		return nil, fmt.Errorf("%w: %v", llm.ErrMalformedJSON, err)
	}

	c.logger.Info("assess.ok",
		"req_id", rid,
		"issues", len(out.Issues),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out.Issues, nil
}

// complete posts one messages-API request and returns the concatenated text
// content of the response.
func (c *Client) complete(ctx context.Context, rid string, body map[string]any) (string, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/messages", bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic http error: %w", err)
	}
	defer func(b io.ReadCloser) {
		if err := b.Close(); err != nil {
			c.logger.Warn("anthropic response body close error", "req_id", rid, "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("anthropic status %d: %s", resp.StatusCode, string(raw))
	}

	var mr struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &mr); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	var b strings.Builder
	for _, block := range mr.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", llm.ErrNoTextContent
	}
	return b.String(), nil
}

// pageContentBlock encodes a page as the appropriate messages-API source
// block: "document" for single-page PDFs, "image" for stills.
func pageContentBlock(page entity.Page) map[string]any {
	blockType := "image"
	if constants.IsPDF(page.MediaType) {
		blockType = "document"
	}
	return map[string]any{
		"type": blockType,
		"source": map[string]any{
			"type":       "base64",
			"media_type": page.MediaType,
			"data":       base64.StdEncoding.EncodeToString(page.Data),
		},
	}
}
