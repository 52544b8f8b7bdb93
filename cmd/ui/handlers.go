package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"asset-tracker-go/internal/models"
	"asset-tracker-go/internal/repository"
	"asset-tracker-go/internal/tracker"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log          *zap.Logger
	store        *repository.Store
	service      *tracker.Service
	baseCurrency string
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, store *repository.Store, service *tracker.Service, baseCurrency string) *APIHandler {
	return &APIHandler{log: log, store: store, service: service, baseCurrency: baseCurrency}
}

// NewRouter registers the read API on a gin engine.
func NewRouter(h *APIHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogging(h.log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/holdings", h.HoldingsHandler)
	api.GET("/history", h.HistoryHandler)
	api.GET("/sync-logs", h.SyncLogsHandler)
	api.GET("/summary", h.SummaryHandler)
	return router
}

// requestLogging logs each request with a request id, status and latency.
func requestLogging(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		c.Writer.Header().Set("X-Request-ID", requestID)

		c.Next()

		log.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
		)
	}
}

// HoldingsHandler returns every holding.
func (h *APIHandler) HoldingsHandler(c *gin.Context) {
	holdings, err := h.service.Holdings(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to get holdings from database", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get holdings"})
		return
	}
	c.JSON(http.StatusOK, holdings)
}

// HistoryHandler returns the daily snapshots ordered by date.
func (h *APIHandler) HistoryHandler(c *gin.Context) {
	history, err := h.service.History(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to get history from database", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get history"})
		return
	}
	c.JSON(http.StatusOK, history)
}

// SyncLogsHandler returns the most recent sync log entries, newest first.
func (h *APIHandler) SyncLogsHandler(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	logs, err := h.store.SyncLogs.All(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to get sync logs from database", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get sync logs"})
		return
	}

	out := make([]models.SyncLogEntry, 0, min(limit, len(logs)))
	for i := len(logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, logs[i])
	}
	c.JSON(http.StatusOK, out)
}

// SummaryResponse is the structure for the /api/summary endpoint.
type SummaryResponse struct {
	*tracker.Valuation
	Holdings  int    `json:"holdings"`
	Formatted string `json:"formatted"`
}

// SummaryHandler values the portfolio in ?currency= (default: base currency).
func (h *APIHandler) SummaryHandler(c *gin.Context) {
	currency := c.DefaultQuery("currency", h.baseCurrency)
	ctx := c.Request.Context()

	v, err := h.service.TotalValue(ctx, currency)
	if errors.Is(err, tracker.ErrUnknownCurrency) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Error("Failed to value portfolio", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to value portfolio"})
		return
	}

	count, err := h.store.Holdings.Count(ctx)
	if err != nil {
		h.log.Error("Failed to count holdings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count holdings"})
		return
	}

	c.JSON(http.StatusOK, SummaryResponse{
		Valuation: v,
		Holdings:  int(count),
		Formatted: tracker.FormatAmount(v.Total, v.Currency),
	})
}
