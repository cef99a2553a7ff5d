package handler

import (
	"errors"
	"net/http"

	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/provisioner"
	"github.com/Fi44er/sol_gift/internal/service"
	"github.com/gin-gonic/gin"
)

func (h *Handler) provision(c *gin.Context) {
	var req struct {
		Network     models.Network `json:"network"`
		Size        int            `json:"size" binding:"required"`
		Name        string         `json:"name" binding:"required"`
		Symbol      string         `json:"symbol"`
		MetadataURL string         `json:"metadataUrl" binding:"required"`
		Royalty     *float64       `json:"royalty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	prov, err := h.service.Provision(c.Request.Context(), identity(c), service.ProvisionRequest{
		Network:     req.Network,
		Size:        req.Size,
		Name:        req.Name,
		Symbol:      req.Symbol,
		MetadataURL: req.MetadataURL,
		Royalty:     req.Royalty,
	})
	h.respondProvision(c, prov, err)
}

func (h *Handler) resumeProvision(c *gin.Context) {
	prov, err := h.service.Resume(c.Request.Context(), identity(c), c.Param("id"))
	h.respondProvision(c, prov, err)
}

func (h *Handler) getProvision(c *gin.Context) {
	prov, err := h.service.GetProvision(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"provision": prov,
		"artifacts": provisioner.Artifacts(prov),
	})
}

// respondProvision reports a failed step together with the record and whatever
// already landed, so the caller can resume.
func (h *Handler) respondProvision(c *gin.Context, prov *models.CollectionProvision, err error) {
	var stepErr *provisioner.StepError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"provision": prov,
			"artifacts": provisioner.Artifacts(prov),
		})
	case errors.As(err, &stepErr) && prov != nil:
		h.logger.Warnf("⚠️ provision %s failed at %s", prov.ID, stepErr.Step)
		c.JSON(statusFor(err), gin.H{
			"success":    false,
			"message":    err.Error(),
			"failedStep": stepErr.Step,
			"provision":  prov,
			"artifacts":  stepErr.Artifacts,
		})
	default:
		h.fail(c, err)
	}
}
