// Package ledgertest provides an in-memory ledger RPC for tests.
package ledgertest

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Fi44er/sol_gift/internal/ledger"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// SendMode scripts what happens to submitted transactions.
type SendMode int

const (
	// SendLand records the transaction and confirms it immediately.
	SendLand SendMode = iota
	// SendReject answers with an RPC error; nothing reaches the ledger.
	SendReject
	// SendDrop accepts the transaction but it never shows up.
	SendDrop
	// SendFailOnChain lands the transaction with a runtime error.
	SendFailOnChain
	// SendLandSilently lands the transaction but reports a transport error to the sender.
	SendLandSilently
)

type FakeRPC struct {
	mu sync.Mutex

	receipts      map[solana.Signature]*rpc.GetTransactionResult
	statuses      map[solana.Signature]*rpc.SignatureStatusesResult
	accounts      map[solana.PublicKey]bool
	balances      map[solana.PublicKey]uint64
	tokenBalances map[solana.PublicKey]uint64
	blockhashes   int

	// Modes are consumed one per submission; Default applies once they run out.
	Modes   []SendMode
	Default SendMode
	Sent    []*solana.Transaction
	Landed  []*solana.Transaction

	// CreatesAccounts makes landed transactions mark every writable account as existing.
	CreatesAccounts bool
	Unhealthy       bool
}

func NewFakeRPC() *FakeRPC {
	return &FakeRPC{
		receipts:        map[solana.Signature]*rpc.GetTransactionResult{},
		statuses:        map[solana.Signature]*rpc.SignatureStatusesResult{},
		accounts:        map[solana.PublicKey]bool{},
		balances:        map[solana.PublicKey]uint64{},
		tokenBalances:   map[solana.PublicKey]uint64{},
		CreatesAccounts: true,
	}
}

// NewClient wires a ledger client over the fake with fast polling.
func NewClient(f *FakeRPC) *ledger.Client {
	return ledger.NewClient(f, ledger.Options{
		ConfirmTimeout: 50 * time.Millisecond,
		PollInterval:   time.Millisecond,
		SendAttempts:   3,
	}, utils.NopLogger())
}

func (f *FakeRPC) SetAccount(key solana.PublicKey, exists bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[key] = exists
}

func (f *FakeRPC) SetBalance(key solana.PublicKey, lamports uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[key] = lamports
	f.accounts[key] = true
}

func (f *FakeRPC) SetTokenBalance(account solana.PublicKey, amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenBalances[account] = amount
	f.accounts[account] = true
}

func (f *FakeRPC) SetStatus(sig solana.Signature, status *rpc.SignatureStatusesResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status == nil {
		delete(f.statuses, sig)
		return
	}
	f.statuses[sig] = status
}

func (f *FakeRPC) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

func (f *FakeRPC) LandedTransactions() []*solana.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*solana.Transaction(nil), f.Landed...)
}

// AddReceipt registers a confirmed transaction with the given balance movements.
func (f *FakeRPC) AddReceipt(tx *solana.Transaction, meta rpc.TransactionMeta) (solana.Signature, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, err
	}
	envelopeJSON, err := json.Marshal([]string{base64.StdEncoding.EncodeToString(raw), string(solana.EncodingBase64)})
	if err != nil {
		return solana.Signature{}, err
	}
	envelope := new(rpc.TransactionResultEnvelope)
	if err := json.Unmarshal(envelopeJSON, envelope); err != nil {
		return solana.Signature{}, err
	}

	sig := tx.Signatures[0]
	f.mu.Lock()
	defer f.mu.Unlock()
	m := meta
	f.receipts[sig] = &rpc.GetTransactionResult{Slot: 1, Transaction: envelope, Meta: &m}
	return sig, nil
}

func (f *FakeRPC) GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.receipts[sig]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return res, nil
}

func (f *FakeRPC) GetSignatureStatuses(ctx context.Context, searchHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &rpc.GetSignatureStatusesResult{}
	for _, sig := range sigs {
		out.Value = append(out.Value, f.statuses[sig])
	}
	return out, nil
}

func (f *FakeRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockhashes++
	hash := sha256.Sum256([]byte("blockhash-" + strconv.Itoa(f.blockhashes)))
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            solana.Hash(hash),
			LastValidBlockHeight: uint64(f.blockhashes) + 150,
		},
	}, nil
}

func (f *FakeRPC) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	return 890880 + dataSize*6960, nil
}

func (f *FakeRPC) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.accounts[account] {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{Lamports: f.balances[account]}}, nil
}

func (f *FakeRPC) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &rpc.GetBalanceResult{Value: f.balances[account]}, nil
}

func (f *FakeRPC) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.accounts[account] {
		return nil, fmt.Errorf("could not find account")
	}
	return &rpc.GetTokenAccountBalanceResult{
		Value: &rpc.UiTokenAmount{Amount: strconv.FormatUint(f.tokenBalances[account], 10)},
	}, nil
}

func (f *FakeRPC) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	mode := f.Default
	if len(f.Modes) > 0 {
		mode = f.Modes[0]
		f.Modes = f.Modes[1:]
	}
	f.Sent = append(f.Sent, tx)
	sig := tx.Signatures[0]

	switch mode {
	case SendReject:
		return solana.Signature{}, &jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed"}
	case SendDrop:
		return sig, nil
	case SendFailOnChain:
		f.statuses[sig] = &rpc.SignatureStatusesResult{
			ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
			Err:                map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
		}
		return sig, nil
	}

	f.statuses[sig] = &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
	f.Landed = append(f.Landed, tx)
	if f.CreatesAccounts {
		for i, key := range tx.Message.AccountKeys {
			if w, _ := tx.Message.IsWritable(key); w && i > 0 {
				f.accounts[key] = true
			}
		}
	}
	if mode == SendLandSilently {
		return solana.Signature{}, fmt.Errorf("connection reset by peer")
	}
	return sig, nil
}

func (f *FakeRPC) GetHealth(ctx context.Context) (string, error) {
	if f.Unhealthy {
		return "behind", nil
	}
	return rpc.HealthOk, nil
}

// Transfer is a decoded system or token transfer found in a submitted transaction.
type Transfer struct {
	Program     solana.PublicKey
	Destination solana.PublicKey
	Amount      uint64
	Decimals    uint8
}

// Transfers decodes system transfers and token TransferChecked instructions of tx.
func Transfers(tx *solana.Transaction) []Transfer {
	var out []Transfer
	keys := tx.Message.AccountKeys
	for _, ix := range tx.Message.Instructions {
		program := keys[ix.ProgramIDIndex]
		data := []byte(ix.Data)
		switch {
		case program.Equals(solana.SystemProgramID) && len(data) == 12 && binary.LittleEndian.Uint32(data) == 2:
			out = append(out, Transfer{
				Program:     program,
				Destination: keys[ix.Accounts[1]],
				Amount:      binary.LittleEndian.Uint64(data[4:]),
			})
		case program.Equals(solana.TokenProgramID) && len(data) == 10 && data[0] == 12:
			out = append(out, Transfer{
				Program:     program,
				Destination: keys[ix.Accounts[2]],
				Amount:      binary.LittleEndian.Uint64(data[1:9]),
				Decimals:    data[9],
			})
		}
	}
	return out
}

// Programs lists the program of every instruction in tx, in order.
func Programs(tx *solana.Transaction) []solana.PublicKey {
	var out []solana.PublicKey
	for _, ix := range tx.Message.Instructions {
		out = append(out, tx.Message.AccountKeys[ix.ProgramIDIndex])
	}
	return out
}
