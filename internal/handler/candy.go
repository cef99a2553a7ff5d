package handler

import (
	"net/http"

	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/service"
	"github.com/gin-gonic/gin"
)

func (h *Handler) createCandyMachineLink(c *gin.Context) {
	var req struct {
		Address             string         `json:"address" binding:"required"`
		CandymachineAddress string         `json:"candymachineAddress" binding:"required"`
		Size                int            `json:"size" binding:"required"`
		Network             models.Network `json:"network"`
		ImageURL            string         `json:"imageUrl" binding:"required"`
		MetadataURL         string         `json:"metadataUrl" binding:"required"`
		Name                string         `json:"name" binding:"required"`
		Description         string         `json:"description"`
		Royalty             *float64       `json:"royalty"`
		Symbol              string         `json:"symbol"`
		ExternalURL         string         `json:"externalUrl"`
		Message             string         `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	link, err := h.service.CreateCandyMachineLink(c.Request.Context(), identity(c), service.CreateCandyMachineLinkRequest{
		Address:             req.Address,
		CandymachineAddress: req.CandymachineAddress,
		Size:                req.Size,
		Network:             req.Network,
		ImageURL:            req.ImageURL,
		MetadataURL:         req.MetadataURL,
		Name:                req.Name,
		Description:         req.Description,
		Royalty:             req.Royalty,
		Symbol:              req.Symbol,
		ExternalURL:         req.ExternalURL,
		Message:             req.Message,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "link": link})
}

func (h *Handler) getCandyMachineLink(c *gin.Context) {
	link, err := h.service.GetCandyMachineLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "link": link, "remaining": link.Remaining()})
}

func (h *Handler) claimNFT(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	sig, err := h.service.ClaimNFT(c.Request.Context(), c.Param("id"), req.ClaimerAddress)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "signature": sig})
}
