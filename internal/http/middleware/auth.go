package middleware

import (
	"net/http"
	"strings"

	"matsched/internal/domain"

	"github.com/gin-gonic/gin"
)

const requestContextKey = "requestContext"

// TokenParser turns a bearer token into the caller's identity.
type TokenParser func(token string) (domain.RequestContext, error)

// Auth reads an optional bearer token. A valid token populates userID,
// userRole and operatorID on the gin context; a malformed or expired one is
// rejected with 401. Requests without a token pass through anonymous.
func Auth(parse TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: bearer token expected", "request_id": GetRequestID(c)})
			return
		}
		rc, err := parse(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: invalid token", "request_id": GetRequestID(c)})
			return
		}
		c.Set("userID", rc.UserID)
		c.Set("userRole", rc.Role)
		c.Set("operatorID", rc.OperatorID)
		c.Set(requestContextKey, rc)
		c.Next()
	}
}

// Identity returns the caller set by Auth, or the zero value for anonymous
// requests.
func Identity(c *gin.Context) domain.RequestContext {
	if v, ok := c.Get(requestContextKey); ok {
		if rc, ok := v.(domain.RequestContext); ok {
			return rc
		}
	}
	return domain.RequestContext{}
}

// RequireRoles only lets requests through whose role is in allowedRoles.
// Auth must run first.
func RequireRoles(allowedRoles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}

	return func(c *gin.Context) {
		role := c.GetString("userRole")
		if role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: login required", "request_id": GetRequestID(c)})
			return
		}
		if _, ok := allowed[strings.ToLower(strings.TrimSpace(role))]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: role not allowed", "request_id": GetRequestID(c)})
			return
		}
		c.Next()
	}
}
