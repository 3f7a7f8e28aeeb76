package split

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/paysliphq/payslips-backend/constants"
	"github.com/paysliphq/payslips-backend/internal/common"
	"github.com/paysliphq/payslips-backend/internal/entity"
)

// Splitter turns one uploaded document into independent single-page payloads.
type Splitter interface {
	// Split returns the document's pages in source order, numbered from 1.
	// Still images pass through as exactly one page. A decode failure is
	// fatal for the given file only and surfaces as a DecodeError.
	Split(data []byte, fileName, mediaType string) ([]entity.Page, error)

	// PageCount returns the number of pages Split would produce, without
	// materializing the per-page payloads.
	PageCount(data []byte, fileName, mediaType string) (int, error)
}

type pdfSplitter struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) Splitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &pdfSplitter{logger: logger}
}

func (s *pdfSplitter) Split(data []byte, fileName, mediaType string) ([]entity.Page, error) {
	if constants.IsImage(mediaType) {
		return []entity.Page{{Number: 1, Data: data, MediaType: mediaType}}, nil
	}
	if !constants.IsPDF(mediaType) {
		return nil, &common.DecodeError{FileName: fileName, Cause: fmt.Errorf("unsupported media type %q", mediaType)}
	}

	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		s.logger.Error("split.decode_failed", "file", fileName, "error", err)
		return nil, &common.DecodeError{FileName: fileName, Cause: err}
	}

	pages := make([]entity.Page, 0, count)
	for i := 1; i <= count; i++ {
		var buf bytes.Buffer
		if err := api.Trim(bytes.NewReader(data), &buf, []string{strconv.Itoa(i)}, nil); err != nil {
			s.logger.Error("split.page_failed", "file", fileName, "page", i, "error", err)
			return nil, &common.DecodeError{FileName: fileName, Cause: fmt.Errorf("extract page %d: %w", i, err)}
		}
		pages = append(pages, entity.Page{
			Number:    i,
			Data:      buf.Bytes(),
			MediaType: constants.MediaTypePDF,
		})
	}

	s.logger.Debug("split.ok", "file", fileName, "pages", count)
	return pages, nil
}

func (s *pdfSplitter) PageCount(data []byte, fileName, mediaType string) (int, error) {
	if constants.IsImage(mediaType) {
		return 1, nil
	}
	if !constants.IsPDF(mediaType) {
		return 0, &common.DecodeError{FileName: fileName, Cause: fmt.Errorf("unsupported media type %q", mediaType)}
	}
	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, &common.DecodeError{FileName: fileName, Cause: err}
	}
	return count, nil
}
