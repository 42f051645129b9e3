package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/loomworks/loomline/internal/actor"
	"go.uber.org/zap"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
	HeaderCompanyID = "X-Company-ID"
)

// ActorResolver reads the acting user from the gateway-injected headers.
// Authentication happens upstream; requests arriving here carry a verified
// identity or none at all.
func ActorResolver() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID := strings.TrimSpace(c.GetHeader(HeaderActorID))
		rawRole := actor.Role(strings.TrimSpace(c.GetHeader(HeaderActorRole)))
		if rawID == "" || rawRole == "" {
			c.Next()
			return
		}

		id, err := snowflake.ParseString(rawID)
		if err != nil || id == 0 || !actor.ValidRole(rawRole) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		act := actor.Actor{ID: id, Role: rawRole}
		if rawCompany := strings.TrimSpace(c.GetHeader(HeaderCompanyID)); rawCompany != "" {
			companyID, err := snowflake.ParseString(rawCompany)
			if err != nil || companyID == 0 {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			act.CompanyID = companyID
		}

		c.Request = c.Request.WithContext(actor.WithActor(c.Request.Context(), act))
		c.Next()
	}
}

// RequestLogger logs one line per request after it completes.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= 500:
			log.Error("request", fields...)
		case c.Writer.Status() >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
