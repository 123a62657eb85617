package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/AyuTrack/internal/keycodec"
)

// KeysHandler exposes the key envelope codec so custodians without a local
// copy of the codec can wrap and unwrap possession keys.
type KeysHandler struct {
	logger *zap.Logger
}

// NewKeysHandler creates a KeysHandler.
func NewKeysHandler(logger *zap.Logger) *KeysHandler {
	return &KeysHandler{logger: logger}
}

// Register mounts the key routes on the given router group.
func (h *KeysHandler) Register(rg *gin.RouterGroup) {
	k := rg.Group("/keys")
	{
		k.POST("/encode", h.Encode)
		k.POST("/decode", h.Decode)
	}
}

type encodeRequest struct {
	Key           string `json:"key"           binding:"required"`
	ReferenceHash string `json:"referenceHash"`
}

type decodeRequest struct {
	Envelope      string `json:"envelope"      binding:"required"`
	ReferenceHash string `json:"referenceHash"`
}

// Encode handles POST /keys/encode.
func (h *KeysHandler) Encode(c *gin.Context) {
	var req encodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	env, err := keycodec.Encode(req.Key, req.ReferenceHash)
	if err != nil {
		writeError(c, h.logger, "encode key", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"envelope": env.String(), "tag": env.Tag()})
}

// Decode handles POST /keys/decode.
func (h *KeysHandler) Decode(c *gin.Context) {
	var req decodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	key, err := keycodec.Decode(req.Envelope, req.ReferenceHash)
	if err != nil {
		writeError(c, h.logger, "decode key", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}
