package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
)

// Key type so the context value cannot collide with other packages.
type actorKey struct{}

var ActorContextKey = actorKey{}

const ActorHeader = "X-Actor-Id"

// Actor copies the caller identity header into the request context. The
// identity is audit metadata only; requests without it are still served.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.GetHeader(ActorHeader)
		if actor != "" {
			ctx := context.WithValue(c.Request.Context(), ActorContextKey, actor)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// GetActor returns the acting identity recorded for this request, or "system"
// when the caller supplied none.
func GetActor(ctx context.Context) string {
	actor, ok := ctx.Value(ActorContextKey).(string)
	if !ok || actor == "" {
		return "system"
	}
	return actor
}
