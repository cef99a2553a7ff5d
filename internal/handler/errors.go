package handler

import (
	"errors"
	"net/http"

	"github.com/Fi44er/sol_gift/internal/ledger"
	"github.com/Fi44er/sol_gift/internal/provisioner"
	"github.com/Fi44er/sol_gift/internal/service"
	"github.com/Fi44er/sol_gift/internal/settlement"
	"github.com/gin-gonic/gin"
)

var statusTable = []struct {
	err    error
	status int
}{
	{service.ErrInvalidInput, http.StatusBadRequest},
	{service.ErrDepositRejected, http.StatusBadRequest},
	{service.ErrUnauthenticated, http.StatusUnauthorized},
	{service.ErrInvalidSignature, http.StatusUnauthorized},
	{service.ErrInvalidNonce, http.StatusUnauthorized},
	{service.ErrUnauthorized, http.StatusUnauthorized},
	{service.ErrLinkNotFound, http.StatusNotFound},
	{service.ErrCollectionNotFound, http.StatusNotFound},
	{service.ErrAlreadyClaimed, http.StatusConflict},
	{service.ErrDuplicateDeposit, http.StatusConflict},
	{service.ErrLinkExists, http.StatusConflict},
	{service.ErrSupplyExhausted, http.StatusConflict},
	{service.ErrAlreadyClaimedByWallet, http.StatusConflict},
	{service.ErrSettlementInProgress, http.StatusConflict},
	{service.ErrCollectionNotReady, http.StatusConflict},
	{service.ErrProvisionRunning, http.StatusConflict},
	{service.ErrSettlementPending, http.StatusAccepted},
	{settlement.ErrInsufficientVaultBalance, http.StatusServiceUnavailable},
	{ledger.ErrSubmissionFailed, http.StatusBadGateway},
	{ledger.ErrTransactionFailed, http.StatusBadGateway},
	{provisioner.ErrStepFailed, http.StatusBadGateway},
}

func statusFor(err error) int {
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// fail answers with {success:false, message}. Internal errors are logged and
// replaced by a generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Errorf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
		message = "internal server error"
	}
	c.JSON(status, gin.H{"success": false, "message": message})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
}
