package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	trackingdomain "github.com/loomworks/loomline/internal/tracking/domain"
)

type trackingResponse struct {
	Tracking *trackingdomain.ProductionTracking     `json:"tracking"`
	Stages   []trackingdomain.ProductionStageUpdate `json:"stages"`
}

func (s *Server) OrderTracking(c *gin.Context) {
	id, ok := parseEntityID(c)
	if !ok {
		return
	}

	tracking, err := s.trackingRepo.FindByOrderID(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.writeTracking(c, tracking)
}

func (s *Server) SampleTracking(c *gin.Context) {
	id, ok := parseEntityID(c)
	if !ok {
		return
	}

	tracking, err := s.trackingRepo.FindBySampleID(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.writeTracking(c, tracking)
}

func (s *Server) writeTracking(c *gin.Context, tracking *trackingdomain.ProductionTracking) {
	if tracking == nil {
		AbortWithError(c, trackingdomain.ErrTrackingNotFound)
		return
	}

	stages, err := s.trackingRepo.ListStages(c.Request.Context(), s.db, tracking.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(200, trackingResponse{Tracking: tracking, Stages: stages})
}

func parseEntityID(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	if raw == "" {
		AbortWithError(c, invalidRequestError())
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		AbortWithError(c, ErrNotFound)
		return 0, false
	}
	return id, true
}
