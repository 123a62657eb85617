package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxTokenClaims = "ayutrack_token_claims"

// RequireToken returns a Gin middleware that enforces a valid Bearer custodian
// token carrying scope. An empty scope accepts any valid token.
//
// On success it injects the *CustodianClaims into the context.
func RequireToken(tokens *TokenIssuer, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}
		if scope != "" && !HasScope(claims, scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "token lacks scope " + scope,
			})
			return
		}

		c.Set(ctxTokenClaims, claims)
		c.Next()
	}
}

// ClaimsFromCtx retrieves the claims injected by RequireToken.
func ClaimsFromCtx(c *gin.Context) *CustodianClaims {
	v, _ := c.Get(ctxTokenClaims)
	claims, _ := v.(*CustodianClaims)
	return claims
}
