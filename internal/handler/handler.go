// Package handler exposes the service over HTTP with gin.
package handler

import (
	"context"

	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/service"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/gin-gonic/gin"
)

type Service interface {
	Nonce(ctx context.Context) (*service.Challenge, error)
	Login(ctx context.Context, address, signature, nonce string) (string, error)
	ParseSession(token string) (service.SessionIdentity, error)

	CreateLink(ctx context.Context, identity service.SessionIdentity, req service.CreateLinkRequest) (*models.Link, error)
	GetLink(ctx context.Context, id string) (*models.Link, error)
	ListLinks(ctx context.Context, identity service.SessionIdentity) ([]models.Link, error)
	Claim(ctx context.Context, id, claimerAddress string) (string, error)
	Cancel(ctx context.Context, identity service.SessionIdentity, id string) (string, error)

	CreateCandyMachineLink(ctx context.Context, identity service.SessionIdentity, req service.CreateCandyMachineLinkRequest) (*models.CandyMachineLink, error)
	GetCandyMachineLink(ctx context.Context, id string) (*models.CandyMachineLink, error)
	ClaimNFT(ctx context.Context, id, claimerAddress string) (string, error)

	Provision(ctx context.Context, identity service.SessionIdentity, req service.ProvisionRequest) (*models.CollectionProvision, error)
	Resume(ctx context.Context, identity service.SessionIdentity, id string) (*models.CollectionProvision, error)
	GetProvision(ctx context.Context, identity service.SessionIdentity, id string) (*models.CollectionProvision, error)

	VaultAddress() string
	Ready(ctx context.Context) error
}

type Handler struct {
	service Service
	logger  *utils.Logger
}

func NewHandler(svc Service, logger *utils.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// NewRouter builds the engine with logging and recovery and every route registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger))
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.healthz)
	r.GET("/readyz", h.readyz)
	r.GET("/tokens", h.listTokens)

	auth := r.Group("/auth")
	auth.GET("/nonce", h.nonce)
	auth.POST("/login", h.login)

	optional := h.withSession(false)
	required := h.withSession(true)

	links := r.Group("/links")
	links.POST("", required, h.createLink)
	links.GET("", required, h.listLinks)
	links.GET("/:id", optional, h.getLink)
	links.POST("/:id", h.claimLink)
	links.DELETE("/:id", required, h.cancelLink)

	candy := r.Group("/candy-machine-links")
	candy.POST("", required, h.createCandyMachineLink)
	candy.GET("/:id", h.getCandyMachineLink)
	candy.POST("/:id", h.claimNFT)

	collections := r.Group("/collections", required)
	collections.POST("", h.provision)
	collections.GET("/:id", h.getProvision)
	collections.POST("/:id/resume", h.resumeProvision)
}
