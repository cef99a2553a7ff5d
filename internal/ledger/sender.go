package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fi44er/sol_gift/utils"
	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// SendRequest describes one logical ledger write. Signers[0] pays the fee.
type SendRequest struct {
	Instructions []solana.Instruction
	Signers      []solana.PrivateKey
	// OnSigned runs before every submission attempt with that attempt's signature.
	// Returning an error aborts before anything is sent.
	OnSigned func(sig solana.Signature) error
}

var statusRank = map[rpc.ConfirmationStatusType]int{
	rpc.ConfirmationStatusProcessed: 0,
	rpc.ConfirmationStatusConfirmed: 1,
	rpc.ConfirmationStatusFinalized: 2,
}

var commitmentRank = map[rpc.CommitmentType]int{
	rpc.CommitmentProcessed: 0,
	rpc.CommitmentConfirmed: 1,
	rpc.CommitmentFinalized: 2,
}

// SendAndConfirm signs with a fresh blockhash per attempt and waits for the settle commitment.
// Attempts the RPC node explicitly rejected are retried; an attempt that may have been
// forwarded is never replaced, its outcome is reported as *AmbiguousError instead.
func (c *Client) SendAndConfirm(ctx context.Context, req SendRequest) (solana.Signature, error) {
	if len(req.Signers) == 0 {
		return solana.Signature{}, errors.New("send: no signers")
	}
	if len(req.Instructions) == 0 {
		return solana.Signature{}, errors.New("send: no instructions")
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.SendAttempts; attempt++ {
		tx, err := c.buildTransaction(ctx, req)
		if err != nil {
			lastErr = err
			c.logger.Warnf("send attempt %d/%d: build failed: %v", attempt, c.opts.SendAttempts, err)
			continue
		}
		sig := tx.Signatures[0]

		if req.OnSigned != nil {
			if err := req.OnSigned(sig); err != nil {
				return solana.Signature{}, fmt.Errorf("send: before submit: %w", err)
			}
		}

		_, err = c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			PreflightCommitment: c.opts.SettleCommitment,
		})
		if err != nil {
			var rpcErr *jsonrpc.RPCError
			if errors.As(err, &rpcErr) {
				lastErr = err
				c.logger.Warnf("send attempt %d/%d rejected (%s): %v", attempt, c.opts.SendAttempts, utils.MaskShort(sig.String()), err)
				continue
			}
			c.logger.Warnf("send attempt %d/%d outcome unknown (%s): %v", attempt, c.opts.SendAttempts, utils.MaskShort(sig.String()), err)
		}

		return sig, c.awaitConfirmation(ctx, sig)
	}

	return solana.Signature{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, lastErr)
}

func (c *Client) buildTransaction(ctx context.Context, req SendRequest) (*solana.Transaction, error) {
	bh, err := c.rpc.GetLatestBlockhash(ctx, c.opts.SettleCommitment)
	if err != nil {
		return nil, fmt.Errorf("failed to get blockhash: %w", err)
	}
	if bh == nil || bh.Value == nil {
		return nil, errors.New("empty blockhash response")
	}

	instructions := make([]solana.Instruction, 0, len(req.Instructions)+1)
	if c.opts.PriorityFeeMicroLamports > 0 {
		instructions = append(instructions, computebudget.NewSetComputeUnitPriceInstruction(c.opts.PriorityFeeMicroLamports).Build())
	}
	instructions = append(instructions, req.Instructions...)

	tx, err := solana.NewTransaction(instructions, bh.Value.Blockhash, solana.TransactionPayer(req.Signers[0].PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range req.Signers {
			if req.Signers[i].PublicKey().Equals(key) {
				return &req.Signers[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}

func (c *Client) awaitConfirmation(ctx context.Context, sig solana.Signature) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.opts.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		done, err := c.checkStatus(waitCtx, sig, false)
		if done {
			return err
		}

		select {
		case <-waitCtx.Done():
			// the wait is over, the transaction may still land: ask once more, detached from the caller
			finalCtx, finalCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			done, err := c.checkStatus(finalCtx, sig, true)
			finalCancel()
			if done {
				return err
			}
			return &AmbiguousError{Signature: sig}
		case <-ticker.C:
		}
	}
}

// checkStatus reports done=true once the outcome of sig is known.
func (c *Client) checkStatus(ctx context.Context, sig solana.Signature, searchHistory bool) (bool, error) {
	status, err := c.SignatureStatus(ctx, sig, searchHistory)
	if err != nil {
		c.logger.Debugf("status of %s: %v", utils.MaskShort(sig.String()), err)
		return false, nil
	}
	if status == nil {
		return false, nil
	}
	if status.Err != nil {
		return true, fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
	}
	if statusRank[status.ConfirmationStatus] >= commitmentRank[c.opts.SettleCommitment] {
		return true, nil
	}
	return false, nil
}

// SignatureStatus returns nil when the ledger does not know the signature.
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature, searchHistory bool) (*rpc.SignatureStatusesResult, error) {
	res, err := c.rpc.GetSignatureStatuses(ctx, searchHistory, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}
	if res == nil || len(res.Value) == 0 {
		return nil, nil
	}
	return res.Value[0], nil
}

// Outcome classifies a previously submitted signature for reconciliation.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeLanded
	OutcomeFailed
)

func (c *Client) Outcome(ctx context.Context, sig solana.Signature) (Outcome, error) {
	status, err := c.SignatureStatus(ctx, sig, true)
	if err != nil {
		return OutcomeUnknown, err
	}
	switch {
	case status == nil:
		return OutcomeUnknown, nil
	case status.Err != nil:
		return OutcomeFailed, nil
	case statusRank[status.ConfirmationStatus] >= commitmentRank[c.opts.SettleCommitment]:
		return OutcomeLanded, nil
	default:
		return OutcomeUnknown, nil
	}
}
