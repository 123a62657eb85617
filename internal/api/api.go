// Package api exposes the AyuTrack ledger over HTTP with Gin.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/AyuTrack/internal/keycodec"
	"github.com/jmerrifield20/AyuTrack/internal/ledger"
	"github.com/jmerrifield20/AyuTrack/internal/qrpayload"
	"github.com/jmerrifield20/AyuTrack/internal/store"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidKey):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrConsensusNotReached):
		return http.StatusServiceUnavailable
	case errors.Is(err, keycodec.ErrMalformedEnvelope),
		errors.Is(err, keycodec.ErrVerificationFailed),
		errors.Is(err, keycodec.ErrKeyFormat),
		errors.Is(err, qrpayload.ErrInvalidPayload):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrChainBroken),
		errors.Is(err, store.ErrDiverged):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with the mapped status. Server-side failures are logged
// and their detail withheld from the client.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := statusFor(err)
	if ledger.IsClientError(err) {
		logger.Debug(op+" rejected", zap.Error(err))
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Error(op, zap.Error(err))
		c.JSON(status, gin.H{"error": op + " failed"})
		return
	}
	logger.Warn(op, zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}

func publicEntries(entries []ledger.Entry) []ledger.Entry {
	out := make([]ledger.Entry, len(entries))
	for i, e := range entries {
		out[i] = e.Public()
	}
	return out
}
