package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	sampledomain "github.com/loomworks/loomline/internal/sample/domain"
)

func (s *Server) CreateSample(c *gin.Context) {
	var req sampledomain.CreateSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	created, err := s.sampleSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(201, created)
}

func (s *Server) GetSample(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	found, err := s.sampleSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(200, found)
}

func (s *Server) ListSamples(c *gin.Context) {
	req := sampledomain.ListSampleRequest{
		Status:     strings.TrimSpace(c.Query("status")),
		CustomerID: strings.TrimSpace(c.Query("customer_id")),
		PageSize:   parsePageSize(c.Query("page_size")),
	}

	resp, err := s.sampleSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(200, resp)
}

func (s *Server) SampleHistory(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	entries, err := s.sampleSvc.History(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(200, gin.H{"history": entries})
}

func (s *Server) TransitionSample(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req sampledomain.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.SampleID = id

	updated, err := s.sampleSvc.Transition(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.metrics.ObserveTransition("sample", string(updated.Status))
	c.JSON(200, updated)
}

func parsePageSize(raw string) int32 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	size, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || size < 0 {
		return 0
	}
	return int32(size)
}
