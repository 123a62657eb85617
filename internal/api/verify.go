package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/AyuTrack/internal/batch"
	"github.com/jmerrifield20/AyuTrack/internal/hashengine"
	"github.com/jmerrifield20/AyuTrack/internal/ledger"
	"github.com/jmerrifield20/AyuTrack/internal/qrpayload"
)

// VerifyHandler checks scanned consumer payloads against the ledger.
type VerifyHandler struct {
	ledger *ledger.Ledger
	logger *zap.Logger
}

// NewVerifyHandler creates a VerifyHandler.
func NewVerifyHandler(l *ledger.Ledger, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{ledger: l, logger: logger}
}

// Register mounts the verification routes on the given router group.
func (h *VerifyHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/verify", h.Verify)
	rg.GET("/verify/schema", h.Schema)
}

// VerifyResult is the outcome of a scan check.
type VerifyResult struct {
	Verified        bool          `json:"verified"`
	Reason          string        `json:"reason,omitempty"`
	Entry           *ledger.Entry `json:"entry,omitempty"`
	TransactionHash string        `json:"transactionHash,omitempty"`
}

// Verify handles POST /verify. The body is the JSON decoded from a QR code.
// The payload is authentic when its blockchain hash names a committed entry
// of the same batch family, every field equals the payload recorded with
// that entry and the chain verifies.
func (h *VerifyHandler) Verify(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	p, err := qrpayload.Validate(raw)
	if err != nil {
		writeError(c, h.logger, "verify payload", err)
		return
	}

	e, ok := h.ledger.FindByHash(p.BlockchainHash)
	if !ok {
		c.JSON(http.StatusOK, VerifyResult{Reason: "hash not found on ledger"})
		return
	}
	if batch.BaseNumber(strings.TrimSpace(p.BatchNumber)) != batch.BaseNumber(e.Record.BatchNumber) {
		c.JSON(http.StatusOK, VerifyResult{Reason: "batch number does not match ledger entry"})
		return
	}
	if !samePayload(*p, e.ConsumerPayload) {
		h.logger.Warn("scanned payload differs from ledger entry",
			zap.String("batch_number", e.Record.BatchNumber),
			zap.String("hash", e.Hash),
		)
		c.JSON(http.StatusOK, VerifyResult{Reason: "payload does not match ledger entry"})
		return
	}
	if err := h.ledger.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("scan verified against broken chain", zap.Error(err))
		c.JSON(http.StatusOK, VerifyResult{Reason: "ledger integrity check failed"})
		return
	}

	pub := e.Public()
	txHash, err := hashengine.TransactionHash("ledger", c.ClientIP(), e.Record.BatchNumber, time.Now().UnixMilli(), hashengine.EventVerify)
	if err != nil {
		h.logger.Warn("transaction hash", zap.Error(err))
	}
	c.JSON(http.StatusOK, VerifyResult{Verified: true, Entry: &pub, TransactionHash: txHash})
}

// samePayload compares payload fingerprints.
func samePayload(scanned, recorded qrpayload.Payload) bool {
	a, err := qrpayload.Hash(scanned)
	if err != nil {
		return false
	}
	b, err := qrpayload.Hash(recorded)
	if err != nil {
		return false
	}
	return a == b
}

// Schema handles GET /verify/schema and serves the published payload JSON Schema.
func (h *VerifyHandler) Schema(c *gin.Context) {
	c.Data(http.StatusOK, "application/schema+json", []byte(qrpayload.Schema()))
}
