package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paysliphq/payslips-backend/constants"
)

// maxUploadBytes bounds one multipart request.
const maxUploadBytes = 100 << 20

// handleUpload accepts one or more payslip documents under the multipart
// field "files", creates the batch and stores the raw blobs. Page counting
// is best effort here; a file that does not decode is still stored and its
// failure surfaces during extraction.
func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one file is required"})
		return
	}

	month, year := nominalPeriod(c)

	batchName := uploads[0].Filename
	if len(uploads) > 1 {
		batchName = fmt.Sprintf("%s (+%d more)", uploads[0].Filename, len(uploads)-1)
	}

	ctx := c.Request.Context()
	batch, err := s.batches.Create(ctx, month, year, batchName)
	if err != nil {
		s.abortError(c, err)
		return
	}

	pageCount := 0
	for _, fh := range uploads {
		mediaType := fh.Header.Get("Content-Type")
		if !constants.IsAllowedMediaType(mediaType) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("unsupported media type %q for %s", mediaType, fh.Filename),
			})
			return
		}

		f, err := fh.Open()
		if err != nil {
			s.abortError(c, err)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.abortError(c, err)
			return
		}

		if _, err := s.files.Add(ctx, batch.ID, fh.Filename, mediaType, data); err != nil {
			s.abortError(c, err)
			return
		}

		if n, err := s.splitter.PageCount(data, fh.Filename, mediaType); err == nil {
			pageCount += n
		} else {
			s.logger.Warn("upload.page_count_failed", "batch_id", batch.ID, "file", fh.Filename, "error", err)
		}
	}

	s.logger.Info("upload.done", "batch_id", batch.ID, "files", len(uploads), "pages", pageCount)
	c.JSON(http.StatusCreated, gin.H{
		"batchId":   batch.ID,
		"fileCount": len(uploads),
		"pageCount": pageCount,
	})
}

// nominalPeriod reads optional month/year form fields, defaulting to the
// current date. The reviewed period always comes from the payslips
// themselves; this only labels the batch.
func nominalPeriod(c *gin.Context) (int, int) {
	now := time.Now()
	month, year := int(now.Month()), now.Year()
	if m, err := strconv.Atoi(c.PostForm("month")); err == nil && m >= 1 && m <= 12 {
		month = m
	}
	if y, err := strconv.Atoi(c.PostForm("year")); err == nil && y >= 2000 && y <= 2100 {
		year = y
	}
	return month, year
}
