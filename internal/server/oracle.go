package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/septivank/ledger-relay-gateway/internal/validator"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"oracle": s.oracle.Health(),
	})
}

func (s *Server) snapshot(c *gin.Context) {
	var user *common.Address
	if raw := strings.TrimSpace(c.Query("address")); raw != "" {
		if !common.IsHexAddress(raw) {
			AbortWithError(c, validator.Invalid("address", "invalid_format", "address must be a 0x-prefixed hex address"))
			return
		}
		addr := common.HexToAddress(raw)
		user = &addr
	}
	ok(c, s.oracle.Snapshot(c.Request.Context(), user))
}

func (s *Server) prices(c *gin.Context) {
	points := s.oracle.Prices(c.Request.Context())
	count := len(points)
	c.JSON(http.StatusOK, dataResponse{Success: true, Data: points, Count: &count})
}

func (s *Server) price(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	point, found := s.oracle.Price(c.Request.Context(), symbol)
	if !found {
		AbortWithError(c, fmt.Errorf("%w: no price for %s", ErrNotFound, symbol))
		return
	}
	ok(c, point)
}
