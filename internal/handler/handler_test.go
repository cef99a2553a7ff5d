package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Fi44er/sol_gift/internal/ledger"
	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/provisioner"
	"github.com/Fi44er/sol_gift/internal/service"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	creator    = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	stranger   = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
	validToken = "valid-token"
)

// stubService answers only what a test configures; anything else panics through the nil interface.
type stubService struct {
	Service

	createLink   func(service.SessionIdentity, service.CreateLinkRequest) (*models.Link, error)
	link         *models.Link
	claimErr     error
	cancelCaller service.SessionIdentity
	provision    func() (*models.CollectionProvision, error)
	readyErr     error
}

func (s *stubService) ParseSession(token string) (service.SessionIdentity, error) {
	if token != validToken {
		return service.SessionIdentity{}, service.ErrUnauthenticated
	}
	return service.SessionIdentity{Address: creator}, nil
}

func (s *stubService) CreateLink(_ context.Context, id service.SessionIdentity, req service.CreateLinkRequest) (*models.Link, error) {
	return s.createLink(id, req)
}

func (s *stubService) GetLink(_ context.Context, id string) (*models.Link, error) {
	if s.link == nil || s.link.ID != id {
		return nil, service.ErrLinkNotFound
	}
	return s.link, nil
}

func (s *stubService) Claim(_ context.Context, _, _ string) (string, error) {
	if s.claimErr != nil {
		return "", s.claimErr
	}
	return "transfer-sig", nil
}

func (s *stubService) Cancel(_ context.Context, id service.SessionIdentity, _ string) (string, error) {
	s.cancelCaller = id
	return "return-sig", nil
}

func (s *stubService) Provision(context.Context, service.SessionIdentity, service.ProvisionRequest) (*models.CollectionProvision, error) {
	return s.provision()
}

func (s *stubService) CreateCandyMachineLink(_ context.Context, id service.SessionIdentity, req service.CreateCandyMachineLinkRequest) (*models.CandyMachineLink, error) {
	return &models.CandyMachineLink{ID: "candy-1", Name: req.Name, CandymachineAddress: req.CandymachineAddress, CreatedByAddress: id.Address}, nil
}

func (s *stubService) VaultAddress() string { return creator }

func (s *stubService) Ready(context.Context) error { return s.readyErr }

func newTestRouter(stub *stubService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(NewHandler(stub, utils.NopLogger()))
}

func do(t *testing.T, r http.Handler, method, path string, body any, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestCreateLinkRequiresSession(t *testing.T) {
	r := newTestRouter(&stubService{})
	body := gin.H{"amount": "1", "token": "SOL", "depositTxSig": "sig", "address": creator}

	w, out := do(t, r, http.MethodPost, "/links", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, out["success"])

	w, _ = do(t, r, http.MethodPost, "/links", body, "forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateLinkPassesRequestThrough(t *testing.T) {
	var got service.CreateLinkRequest
	var caller service.SessionIdentity
	stub := &stubService{createLink: func(id service.SessionIdentity, req service.CreateLinkRequest) (*models.Link, error) {
		caller, got = id, req
		return &models.Link{ID: "link-1", Amount: req.Amount, CreatedByAddress: id.Address}, nil
	}}
	r := newTestRouter(stub)

	w, out := do(t, r, http.MethodPost, "/links", gin.H{
		"amount":       0.25,
		"token":        "USDC",
		"depositTxSig": "deposit-sig",
		"address":      creator,
		"message":      "happy birthday",
	}, validToken)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, creator, caller.Address)
	assert.True(t, decimal.RequireFromString("0.25").Equal(got.Amount))
	assert.Equal(t, "USDC", got.Token)
	assert.Equal(t, "deposit-sig", got.DepositTxSig)
	assert.Equal(t, "happy birthday", got.Message)

	w, _ = do(t, r, http.MethodPost, "/links", gin.H{"amount": "1", "address": creator}, validToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: amount must be positive", service.ErrInvalidInput), http.StatusBadRequest},
		{service.ErrUnauthorized, http.StatusUnauthorized},
		{service.ErrLinkNotFound, http.StatusNotFound},
		{service.ErrAlreadyClaimed, http.StatusConflict},
		{service.ErrSupplyExhausted, http.StatusConflict},
		{fmt.Errorf("%w: %w", service.ErrSettlementPending, &ledger.AmbiguousError{}), http.StatusAccepted},
		{fmt.Errorf("settlement failed: %w", ledger.ErrTransactionFailed), http.StatusBadGateway},
		{errors.New("database is down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := newTestRouter(&stubService{claimErr: tc.err})
		w, out := do(t, r, http.MethodPost, "/links/link-1", gin.H{"claimerAddress": stranger}, "")
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		assert.Equal(t, false, out["success"])
		if tc.status == http.StatusInternalServerError {
			assert.Equal(t, "internal server error", out["message"])
		} else {
			assert.Equal(t, tc.err.Error(), out["message"])
		}
	}
}

func TestClaimLink(t *testing.T) {
	r := newTestRouter(&stubService{})

	w, out := do(t, r, http.MethodPost, "/links/link-1", gin.H{"claimerAddress": stranger}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, gin.H{"success": true, "transferSig": "transfer-sig"}, gin.H(out))

	w, _ = do(t, r, http.MethodPost, "/links/link-1", gin.H{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelLinkUsesSessionIdentity(t *testing.T) {
	stub := &stubService{}
	r := newTestRouter(stub)

	w, _ := do(t, r, http.MethodDelete, "/links/link-1", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, out := do(t, r, http.MethodDelete, "/links/link-1", nil, validToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "return-sig", out["returnSig"])
	assert.Equal(t, service.SessionIdentity{Address: creator}, stub.cancelCaller)
}

func TestGetLinkHidesDepositFromStrangers(t *testing.T) {
	stub := &stubService{link: &models.Link{
		ID:               "link-1",
		Amount:           decimal.NewFromInt(2),
		AssetKind:        models.AssetNative,
		Symbol:           models.NativeSymbol,
		DepositTxRef:     "deposit-sig",
		CreatedByAddress: creator,
	}}
	r := newTestRouter(stub)

	w, out := do(t, r, http.MethodGet, "/links/link-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	link := out["link"].(map[string]any)
	assert.Equal(t, "SOL", link["symbol"])
	assert.NotContains(t, link, "deposit_tx_ref")
	assert.NotContains(t, link, "created_by_address")

	_, out = do(t, r, http.MethodGet, "/links/link-1", nil, validToken)
	link = out["link"].(map[string]any)
	assert.Equal(t, "deposit-sig", link["deposit_tx_ref"])

	w, _ = do(t, r, http.MethodGet, "/links/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProvisionFailureReturnsArtifacts(t *testing.T) {
	tree := "tree-address"
	prov := &models.CollectionProvision{ID: "prov-1", Step: models.StepTreeAllocated, TreeAddress: &tree}
	stub := &stubService{provision: func() (*models.CollectionProvision, error) {
		return prov, &provisioner.StepError{
			Step:      provisioner.StepMintCollection,
			Artifacts: provisioner.Artifacts(prov),
			Err:       ledger.ErrTransactionFailed,
		}
	}}
	r := newTestRouter(stub)

	w, out := do(t, r, http.MethodPost, "/collections", gin.H{
		"size": 8, "name": "Gifts", "metadataUrl": "https://example.com/c.json",
	}, validToken)
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, provisioner.StepMintCollection, out["failedStep"])
	assert.Equal(t, tree, out["artifacts"].(map[string]any)["tree"])
	assert.Equal(t, "prov-1", out["provision"].(map[string]any)["id"])
}

func TestReadiness(t *testing.T) {
	stub := &stubService{}
	r := newTestRouter(stub)

	w, _ := do(t, r, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, out := do(t, r, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", out["status"])

	stub.readyErr = errors.New("rpc unreachable")
	w, _ = do(t, r, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListTokens(t *testing.T) {
	r := newTestRouter(&stubService{})

	w, out := do(t, r, http.MethodGet, "/tokens", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := out["tokens"].([]any)
	require.NotEmpty(t, list)
	sol := list[0].(map[string]any)
	assert.Equal(t, "SOL", sol["symbol"])
	assert.NotContains(t, sol, "mint")
}

func TestCreateRoutesLogOnlyTheRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	stub := &stubService{createLink: func(id service.SessionIdentity, req service.CreateLinkRequest) (*models.Link, error) {
		return &models.Link{ID: "link-1", Amount: req.Amount, CreatedByAddress: id.Address}, nil
	}}
	r := NewRouter(NewHandler(stub, &utils.Logger{Logger: logger}))

	w, _ := do(t, r, http.MethodPost, "/links", gin.H{
		"amount": "1", "token": "SOL", "depositTxSig": "deposit-sig", "address": creator,
	}, validToken)
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = do(t, r, http.MethodPost, "/candy-machine-links", gin.H{
		"address":             creator,
		"candymachineAddress": "tree",
		"size":                2,
		"imageUrl":            "https://example.com/nft.png",
		"metadataUrl":         "https://example.com/nft.json",
		"name":                "Gift NFT",
	}, validToken)
	require.Equal(t, http.StatusCreated, w.Code)

	// creation is logged by the service; the handler adds only the access line
	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "request served", e.Message)
	}
}
