package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/monsterbattle/cache"
	"github.com/kasuganosora/monsterbattle/config"
)

const PlayerIDKey = "player_id"

func revokedKey(jti string) string { return "auth:revoked:" + jti }

// Auth validates the Bearer token and rejects revoked ones. Browsers cannot
// set headers on EventSource or WebSocket requests, so a "token" query
// parameter is accepted as well.
func Auth(sec config.SecurityConfig, store cache.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearer(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if store != nil && claims.ID != "" {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			_, err := store.Get(ctx, revokedKey(claims.ID))
			cancel()
			switch {
			case err == nil:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
				return
			case !cache.IsNotFound(err):
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "auth store unavailable"})
				return
			}
		}

		c.Set(PlayerIDKey, claims.PlayerID)
		c.Next()
	}
}

func bearer(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

// Revoke blocks claims' token until it would have expired anyway.
func Revoke(ctx context.Context, store cache.Store, claims *Claims) error {
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	return store.Set(ctx, revokedKey(claims.ID), "1", ttl)
}

// GetPlayerID returns the authenticated player, or 0.
func GetPlayerID(c *gin.Context) int64 {
	if v, ok := c.Get(PlayerIDKey); ok {
		return v.(int64)
	}
	return 0
}
