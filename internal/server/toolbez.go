package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/septivank/ledger-relay-gateway/internal/enterprise"
	"github.com/septivank/ledger-relay-gateway/internal/record"
)

type batchRequest struct {
	Operations []record.Request `json:"operations"`
}

type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
	Count   *int `json:"count,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dataResponse{Success: true, Data: data})
}

func (s *Server) ingest(c *gin.Context) {
	var req record.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidBody(err))
		return
	}

	receipt, err := s.relay.SubmitAs(c.Request.Context(), clientFromContext(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (s *Server) runBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidBody(err))
		return
	}

	job, err := s.batch.RunAs(c.Request.Context(), clientFromContext(c), req.Operations)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) verify(c *gin.Context) {
	chain, err := s.verifier.Verify(c.Request.Context(), c.Param("productId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	ok(c, chain)
}

func (s *Server) enterpriseStats(c *gin.Context) {
	ok(c, enterprise.StatsFor(clientFromContext(c)))
}
