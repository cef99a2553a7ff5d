package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Fi44er/sol_gift/internal/tokens"
	"github.com/gin-gonic/gin"
)

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.service.Ready(ctx); err != nil {
		h.logger.Warnf("readiness check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "vault": h.service.VaultAddress()})
}

type tokenView struct {
	Symbol   string `json:"symbol"`
	Mint     string `json:"mint,omitempty"`
	Decimals uint8  `json:"decimals"`
}

func (h *Handler) listTokens(c *gin.Context) {
	supported := tokens.Supported()
	views := make([]tokenView, 0, len(supported))
	for _, t := range supported {
		v := tokenView{Symbol: t.Symbol, Decimals: t.Decimals}
		if !t.Native() {
			v.Mint = t.Mint.String()
		}
		views = append(views, v)
	}
	c.JSON(http.StatusOK, gin.H{"tokens": views})
}
