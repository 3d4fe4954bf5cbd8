package transport

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ds124wfegd/parking/internal/entity"
	"github.com/ds124wfegd/parking/internal/service"
)

const reportFileName = "parking-report.csv"

type ReportHandler struct {
	reportService service.ReportService
}

func NewReportHandler(reportService service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

func reportRequest(c *gin.Context) (*service.ReportRequest, error) {
	var (
		req service.ReportRequest
		err error
	)
	if req.From, err = timeQuery(c, "from", false); err != nil {
		return nil, err
	}
	if req.To, err = timeQuery(c, "to", true); err != nil {
		return nil, err
	}
	if req.SlotID, err = int64Query(c, "slotId"); err != nil {
		return nil, err
	}
	if req.Segment, err = entity.ParseSegment(c.Query("segment")); err != nil {
		return nil, err
	}
	return &req, nil
}

func (h *ReportHandler) GetReport(c *gin.Context) {
	req, err := reportRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}

	report, err := h.reportService.GetReport(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// ExportCSV renders the whole file before writing so a failure can still be
// reported as JSON.
func (h *ReportHandler) ExportCSV(c *gin.Context) {
	req, err := reportRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := h.reportService.ExportCSV(c.Request.Context(), req, &buf); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+reportFileName+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *ReportHandler) GetMonthlyReport(c *gin.Context) {
	report, err := h.reportService.GetMonthlyReport(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
