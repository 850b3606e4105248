package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"bloomshield/internal/core"
	"bloomshield/internal/server/service"
	"bloomshield/internal/timestamp"
)

// Ledger answers the timestamp endpoint. *timestamp.Simulator implements it.
type Ledger interface {
	Stamp(ctx context.Context, req timestamp.Request) (*timestamp.Response, error)
	Verify(ctx context.Context, txHash, legalHash string) (*timestamp.VerifyResponse, error)
}

// Handler contains the HTTP handlers for the BloomShield API.
type Handler struct {
	orch        *service.Orchestrator
	protections *service.ProtectionService
	ledger      Ledger
	maxFileSize int64
}

// NewHandler creates a new handler.
func NewHandler(orch *service.Orchestrator, protections *service.ProtectionService, ledger Ledger, maxFileSize int64) *Handler {
	return &Handler{
		orch:        orch,
		protections: protections,
		ledger:      ledger,
		maxFileSize: maxFileSize,
	}
}

// protectResponse is the body of a protect call, successful or not.
type protectResponse struct {
	Record     *service.ProtectionInfo `json:"record,omitempty"`
	Hashes     *core.Hashes            `json:"hashes,omitempty"`
	Blockchain *timestamp.Result       `json:"blockchain,omitempty"`
	Simulated  bool                    `json:"simulated"`
	Status     string                  `json:"status"`
	StatusLog  []service.Status        `json:"statusLog"`
	Error      string                  `json:"error,omitempty"`
}

// HandleTimestamp handles POST /api/blockchain/timestamp.
func (h *Handler) HandleTimestamp(c echo.Context) error {
	var req timestamp.Request
	if err := c.Bind(&req); err != nil {
		return stampFailed(c, req, err)
	}

	resp, err := h.ledger.Stamp(c.Request().Context(), req)
	if err != nil {
		return stampFailed(c, req, err)
	}

	slog.Info("timestamp created",
		"legal_hash", req.LegalHash,
		"tx_hash", resp.Blockchain.TransactionHash,
		"block_number", resp.Blockchain.BlockNumber,
	)
	return c.JSON(http.StatusOK, resp)
}

// stampFailed is the single error shape of the timestamp endpoint.
func stampFailed(c echo.Context, req timestamp.Request, err error) error {
	slog.Error("failed to create timestamp", "legal_hash", req.LegalHash, "error", err)
	return c.JSON(http.StatusInternalServerError, timestamp.Response{
		Error:   "Failed to create blockchain timestamp",
		Details: err.Error(),
	})
}

// HandleVerify handles GET /api/blockchain/timestamp?txHash=&legalHash=.
// Both parameters are optional; the stub confirms every lookup.
func (h *Handler) HandleVerify(c echo.Context) error {
	resp, err := h.ledger.Verify(c.Request().Context(), c.QueryParam("txHash"), c.QueryParam("legalHash"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, timestamp.VerifyResponse{Error: "Failed to verify timestamp"})
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleProtect handles POST /api/protect.
// Accepts a multipart form with a "file" field, an optional "password" and an
// optional "lastModified" (unix milliseconds).
func (h *Handler) HandleProtect(c echo.Context) error {
	if !h.orch.Configured() {
		return c.JSON(http.StatusServiceUnavailable, protectResponse{
			Status: "Configuration error: storage is not configured",
			Error:  "storage is not configured",
		})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "file is required (use form field 'file')",
		})
	}
	if h.maxFileSize > 0 && fileHeader.Size > h.maxFileSize {
		return mapServiceError(c, service.ErrFileTooLarge)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}

	lastModified := time.Now()
	if v := c.FormValue("lastModified"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error": "lastModified must be unix milliseconds",
			})
		}
		lastModified = time.UnixMilli(ms)
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = core.DetectMimeType(fileHeader.Filename, data)
	}

	out, err := h.orch.Protect(c.Request().Context(), service.Upload{
		FileName:     fileHeader.Filename,
		MimeType:     mimeType,
		LastModified: lastModified,
		Data:         data,
		Password:     c.FormValue("password"),
	}, nil)

	resp := protectResponse{
		Simulated: out.Simulated,
		Status:    out.Status.Message,
		StatusLog: out.StatusLog,
	}
	if out.Hashes.Legal != "" {
		resp.Hashes = &out.Hashes
	}
	if out.Timestamp.TransactionHash != "" {
		resp.Blockchain = &out.Timestamp
	}

	if err != nil {
		resp.Error = err.Error()
		return c.JSON(protectErrorStatus(err), resp)
	}

	resp.Record = h.protections.Info(out.Record)
	return c.JSON(http.StatusCreated, resp)
}

// HandleGetProtection handles GET /api/protections/:id.
func (h *Handler) HandleGetProtection(c echo.Context) error {
	info, err := h.protections.GetInfo(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleFindProtections handles GET /api/protections?legalHash= or ?txHash=.
func (h *Handler) HandleFindProtections(c echo.Context) error {
	ctx := c.Request().Context()

	if tx := c.QueryParam("txHash"); tx != "" {
		v, err := h.protections.VerifyTransaction(ctx, tx)
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.JSON(http.StatusOK, v)
	}

	legal := c.QueryParam("legalHash")
	if legal == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "legalHash or txHash is required"})
	}

	records, err := h.protections.FindByLegalHash(ctx, legal)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"legalHash": legal,
		"records":   records,
	})
}

// HandleDownload handles GET /api/protections/:id/file.
// Serves the original bytes as an attachment. Accepts an optional "password" query param.
func (h *Handler) HandleDownload(c echo.Context) error {
	rc, p, err := h.protections.OpenFile(c.Request().Context(), c.Param("id"), c.QueryParam("password"))
	if err != nil {
		return mapServiceError(c, err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", p.FileName))
	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(p.FileSize, 10))
	return c.Stream(http.StatusOK, p.MimeType, rc)
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"
	storageStatus := "configured"

	if err := h.protections.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}
	if !h.orch.Configured() {
		status = "degraded"
		storageStatus = "not configured"
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
		"storage":  storageStatus,
	})
}

// HandleStats handles GET /api/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.protections.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to retrieve stats",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_protections":    stats.TotalProtections,
		"simulated_timestamps": stats.SimulatedTimestamps,
		"total_bytes":          stats.TotalBytes,
		"total_bytes_human":    humanizeBytes(stats.TotalBytes),
	})
}

func protectErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrPasswordTooLong):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrStorageUpload), errors.Is(err, service.ErrRecordInsert):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "protection not found"})
	case errors.Is(err, service.ErrPasswordRequired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "password_required"})
	case errors.Is(err, service.ErrInvalidPassword):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid password"})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "file exceeds maximum allowed size",
		})
	case errors.Is(err, service.ErrNotConfigured):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage is not configured"})
	default:
		slog.Error("request failed", "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
