package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/AyuTrack/internal/identity"
)

// TokenHandler issues custodian tokens through the OAuth2 client-credentials grant.
type TokenHandler struct {
	custodians *identity.Custodians
	tokens     *identity.TokenIssuer
	logger     *zap.Logger
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(custodians *identity.Custodians, tokens *identity.TokenIssuer, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{custodians: custodians, tokens: tokens, logger: logger}
}

// Register mounts the token route on the given router group.
func (h *TokenHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/oauth/token", h.IssueToken)
}

// IssueToken handles POST /oauth/token.
//
// Client credentials are read from HTTP Basic auth or from the client_id and
// client_secret form fields.
//
//	Request (form):
//	  grant_type: "client_credentials"   (required)
//	  scope:      "ledger:append ledger:read"  (optional; defaults to both)
//
//	Response:
//	  {"access_token":"...", "token_type":"Bearer", "expires_in":3600, "scope":"..."}
func (h *TokenHandler) IssueToken(c *gin.Context) {
	if c.PostForm("grant_type") != "client_credentials" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported_grant_type",
			"error_description": "only client_credentials is supported",
		})
		return
	}

	id, secret, ok := c.Request.BasicAuth()
	if !ok {
		id, secret = c.PostForm("client_id"), c.PostForm("client_secret")
	}
	if err := h.custodians.Authenticate(id, secret); err != nil {
		h.logger.Warn("custodian authentication failed", zap.String("custodian_id", id))
		c.Header("WWW-Authenticate", `Basic realm="ayutrack"`)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_client"})
		return
	}

	scopes := identity.DefaultScopes
	if s := strings.Fields(c.PostForm("scope")); len(s) > 0 {
		for _, want := range s {
			if want != identity.ScopeAppend && want != identity.ScopeRead {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_scope"})
				return
			}
		}
		scopes = s
	}

	token, err := h.tokens.Issue(id, scopes)
	if err != nil {
		h.logger.Error("issue token", zap.String("custodian_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	h.logger.Info("token issued",
		zap.String("custodian_id", id),
		zap.Strings("scopes", scopes),
	)
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(h.tokens.TTL().Seconds()),
		"scope":        strings.Join(scopes, " "),
	})
}
