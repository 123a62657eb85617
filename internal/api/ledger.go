package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/AyuTrack/internal/ledger"
)

// LedgerHandler exposes read-only HTTP endpoints for the ledger.
type LedgerHandler struct {
	ledger *ledger.Ledger
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(l *ledger.Ledger, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: l, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/status", h.Status)
		l.GET("/entries", h.ListEntries)
		l.GET("/entries/:idx", h.GetEntry)
	}
}

// Overview handles GET /ledger and returns the chain length and current root hash.
func (h *LedgerHandler) Overview(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"entries": h.ledger.Len(),
		"root":    h.ledger.Root(),
	})
}

// Verify handles GET /ledger/verify and walks the full chain, reporting integrity.
func (h *LedgerHandler) Verify(c *gin.Context) {
	if err := h.ledger.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("ledger integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// Status handles GET /ledger/status and reports the simulated network status.
func (h *LedgerHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.Status(c.Request.Context()))
}

// ListEntries handles GET /ledger/entries?offset=N&limit=M.
func (h *LedgerHandler) ListEntries(c *gin.Context) {
	offset, err1 := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, err2 := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err1 != nil || err2 != nil || offset < 0 || limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be >= 0 and limit between 1 and 500"})
		return
	}

	all := h.ledger.Entries()
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	c.JSON(http.StatusOK, gin.H{
		"total":   total,
		"offset":  offset,
		"entries": publicEntries(all[offset:end]),
	})
}

// GetEntry handles GET /ledger/entries/:idx and returns a single ledger entry.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	entry, err := h.ledger.Get(idx)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	c.JSON(http.StatusOK, entry.Public())
}
