package handler

import (
	"net/http"
	"time"

	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// publicLink is what anyone holding the link id may see.
type publicLink struct {
	ID        string           `json:"id"`
	Network   models.Network   `json:"network"`
	Amount    decimal.Decimal  `json:"amount"`
	AssetKind models.AssetKind `json:"asset_kind"`
	Mint      *string          `json:"mint,omitempty"`
	Symbol    string           `json:"symbol,omitempty"`
	Message   string           `json:"message,omitempty"`
	Claimed   bool             `json:"claimed"`
	ClaimedAt *time.Time       `json:"claimed_at,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

func newPublicLink(l *models.Link) publicLink {
	return publicLink{
		ID:        l.ID,
		Network:   l.Network,
		Amount:    l.Amount,
		AssetKind: l.AssetKind,
		Mint:      l.Mint,
		Symbol:    l.Symbol,
		Message:   l.Message,
		Claimed:   l.Claimed,
		ClaimedAt: l.ClaimedAt,
		CreatedAt: l.CreatedAt,
	}
}

type claimRequest struct {
	ClaimerAddress string `json:"claimerAddress" binding:"required"`
}

func (h *Handler) createLink(c *gin.Context) {
	var req struct {
		Amount       decimal.Decimal `json:"amount"`
		Token        string          `json:"token" binding:"required"`
		DepositTxSig string          `json:"depositTxSig" binding:"required"`
		Address      string          `json:"address" binding:"required"`
		Message      string          `json:"message"`
		Mint         string          `json:"mint"`
		Decimals     *uint8          `json:"decimals"`
		Symbol       string          `json:"symbol"`
		Network      models.Network  `json:"network"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	link, err := h.service.CreateLink(c.Request.Context(), identity(c), service.CreateLinkRequest{
		Amount:       req.Amount,
		Token:        req.Token,
		DepositTxSig: req.DepositTxSig,
		Address:      req.Address,
		Message:      req.Message,
		Mint:         req.Mint,
		Decimals:     req.Decimals,
		Symbol:       req.Symbol,
		Network:      req.Network,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "link": link})
}

func (h *Handler) listLinks(c *gin.Context) {
	links, err := h.service.ListLinks(c.Request.Context(), identity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "links": links})
}

// getLink shows the full record to its creator and the public view to everyone else.
func (h *Handler) getLink(c *gin.Context) {
	link, err := h.service.GetLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if identity(c).Address == link.CreatedByAddress {
		c.JSON(http.StatusOK, gin.H{"success": true, "link": link})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "link": newPublicLink(link)})
}

func (h *Handler) claimLink(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	sig, err := h.service.Claim(c.Request.Context(), c.Param("id"), req.ClaimerAddress)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "transferSig": sig})
}

func (h *Handler) cancelLink(c *gin.Context) {
	sig, err := h.service.Cancel(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "returnSig": sig})
}
