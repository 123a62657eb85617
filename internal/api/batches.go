package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/AyuTrack/internal/batch"
	"github.com/jmerrifield20/AyuTrack/internal/hashengine"
	"github.com/jmerrifield20/AyuTrack/internal/identity"
	"github.com/jmerrifield20/AyuTrack/internal/ledger"
	"github.com/jmerrifield20/AyuTrack/internal/qrpayload"
)

const (
	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

// BatchHandler serves batch submission and lookup.
type BatchHandler struct {
	ledger *ledger.Ledger
	tokens *identity.TokenIssuer // nil disables custodian auth
	logger *zap.Logger
}

// NewBatchHandler creates a BatchHandler. When tokens is nil, appends are
// gated by the possession key alone.
func NewBatchHandler(l *ledger.Ledger, tokens *identity.TokenIssuer, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{ledger: l, tokens: tokens, logger: logger}
}

// Register mounts the batch routes on the given router group.
func (h *BatchHandler) Register(rg *gin.RouterGroup) {
	b := rg.Group("/batches")
	if h.tokens != nil {
		b.POST("", identity.RequireToken(h.tokens, identity.ScopeAppend), h.Append)
	} else {
		b.POST("", h.Append)
	}
	b.GET("/:id", h.Get)
	b.GET("/:id/history", h.History)
	b.GET("/:id/qr", h.Payload)
	b.GET("/:id/qr.png", h.QRCode)
}

// AppendRequest is the body of POST /batches.
type AppendRequest struct {
	batch.Record
	PrivateKey string `json:"private_key"`
}

// AppendResponse is returned for a committed batch. NextKey is shown once, to
// the submitting custodian only.
type AppendResponse struct {
	Entry           ledger.Entry `json:"entry"`
	NextKey         string       `json:"nextKey"`
	KeyEnvelope     string       `json:"keyEnvelope,omitempty"`
	TransactionHash string       `json:"transactionHash"`
}

// Append handles POST /batches.
func (h *BatchHandler) Append(c *gin.Context) {
	var req AppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	e, err := h.ledger.Append(c.Request.Context(), req.Record, req.PrivateKey)
	if err != nil {
		writeError(c, h.logger, "append batch", err)
		return
	}

	// The first entry of a batch family is its creation; later ones are transfers.
	event := hashengine.EventTransfer
	if len(e.LocationTrail) == 1 {
		event = hashengine.EventCreate
	}

	custodian := "anonymous"
	if claims := identity.ClaimsFromCtx(c); claims != nil {
		custodian = claims.CustodianID
	}
	txHash, err := hashengine.TransactionHash(custodian, string(e.Record.Stage), e.Record.BatchNumber, e.Timestamp, event)
	if err != nil {
		h.logger.Warn("transaction hash", zap.Error(err))
	}

	h.logger.Info("batch appended",
		zap.Int("idx", e.Index),
		zap.String("batch_number", e.Record.BatchNumber),
		zap.String("custodian", custodian),
	)
	c.JSON(http.StatusCreated, AppendResponse{
		Entry:           e.Public(),
		NextKey:         e.NextKey,
		KeyEnvelope:     e.KeyEnvelope,
		TransactionHash: txHash,
	})
}

// Get handles GET /batches/:id.
func (h *BatchHandler) Get(c *gin.Context) {
	e, ok := h.ledger.FindByBatchNumber(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	c.JSON(http.StatusOK, e.Public())
}

// History handles GET /batches/:id/history.
func (h *BatchHandler) History(c *gin.Context) {
	id := c.Param("id")
	entries := h.ledger.HistoryFor(id)
	if len(entries) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"batchNumber": batch.BaseNumber(id),
		"entries":     publicEntries(entries),
	})
}

// Payload handles GET /batches/:id/qr and returns the consumer payload as JSON.
func (h *BatchHandler) Payload(c *gin.Context) {
	e, ok := h.ledger.FindByBatchNumber(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	c.JSON(http.StatusOK, e.ConsumerPayload)
}

// QRCode handles GET /batches/:id/qr.png?size=N.
func (h *BatchHandler) QRCode(c *gin.Context) {
	e, ok := h.ledger.FindByBatchNumber(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}

	size := defaultQRSize
	if s := c.Query("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < minQRSize || n > maxQRSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "size must be an integer between 64 and 1024"})
			return
		}
		size = n
	}

	png, err := qrpayload.PNG(e.ConsumerPayload, size)
	if err != nil {
		h.logger.Error("render qr", zap.String("batch_number", e.Record.BatchNumber), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render QR code"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
