package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) nonce(c *gin.Context) {
	challenge, err := h.service.Nonce(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, challenge)
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Address   string `json:"address" binding:"required"`
		Signature string `json:"signature" binding:"required"`
		Nonce     string `json:"nonce" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	token, err := h.service.Login(c.Request.Context(), req.Address, req.Signature, req.Nonce)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}
