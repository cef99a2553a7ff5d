package ledger_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/Fi44er/sol_gift/internal/ledger"
	"github.com/Fi44er/sol_gift/internal/ledger/ledgertest"
	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func transferRequest(payer solana.PrivateKey, to solana.PublicKey) ledger.SendRequest {
	return ledger.SendRequest{
		Instructions: []solana.Instruction{
			system.NewTransferInstruction(1000, payer.PublicKey(), to).Build(),
		},
		Signers: []solana.PrivateKey{payer},
	}
}

func TestSendAndConfirmLands(t *testing.T) {
	fake := ledgertest.NewFakeRPC()
	client := ledgertest.NewClient(fake)
	payer := newKey(t)

	var signed []solana.Signature
	req := transferRequest(payer, newKey(t).PublicKey())
	req.OnSigned = func(sig solana.Signature) error {
		signed = append(signed, sig)
		return nil
	}

	sig, err := client.SendAndConfirm(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.SentCount())
	require.Len(t, signed, 1)
	assert.Equal(t, sig, signed[0])

	transfers := ledgertest.Transfers(fake.LandedTransactions()[0])
	require.Len(t, transfers, 1)
	assert.Equal(t, uint64(1000), transfers[0].Amount)
}

func TestSendAndConfirmRetriesRejectedAttempts(t *testing.T) {
	fake := ledgertest.NewFakeRPC()
	fake.Modes = []ledgertest.SendMode{ledgertest.SendReject, ledgertest.SendReject}
	client := ledgertest.NewClient(fake)

	var signed []solana.Signature
	req := transferRequest(newKey(t), newKey(t).PublicKey())
	req.OnSigned = func(sig solana.Signature) error {
		signed = append(signed, sig)
		return nil
	}

	sig, err := client.SendAndConfirm(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, fake.SentCount())
	require.Len(t, signed, 3)
	assert.NotEqual(t, signed[0], signed[1], "every attempt uses a fresh blockhash")
	assert.Equal(t, signed[2], sig)
}

func TestSendAndConfirmGivesUpAfterRejections(t *testing.T) {
	fake := ledgertest.NewFakeRPC()
	fake.Default = ledgertest.SendReject
	client := ledgertest.NewClient(fake)

	_, err := client.SendAndConfirm(context.Background(), transferRequest(newKey(t), newKey(t).PublicKey()))
	require.ErrorIs(t, err, ledger.ErrSubmissionFailed)
	assert.Equal(t, 3, fake.SentCount())
}

func TestSendAndConfirmUnobservedIsAmbiguous(t *testing.T) {
	fake := ledgertest.NewFakeRPC()
	fake.Default = ledgertest.SendDrop
	client := ledgertest.NewClient(fake)

	sig, err := client.SendAndConfirm(context.Background(), transferRequest(newKey(t), newKey(t).PublicKey()))
	require.ErrorIs(t, err, ledger.ErrConfirmationTimeout)

	var ambiguous *ledger.AmbiguousError
	require.True(t, errors.As(err, &ambiguous))
	assert.Equal(t, sig, ambiguous.Signature)
	assert.Equal(t, 1, fake.SentCount(), "an attempt that may land is never replaced")
}

func TestSendAndConfirmFailedOnChain(t *testing.T) {
	fake := ledgertest.NewFakeRPC()
	fake.Default = ledgertest.SendFailOnChain
	client := ledgertest.NewClient(fake)

	_, err := client.SendAndConfirm(context.Background(), transferRequest(newKey(t), newKey(t).PublicKey()))
	require.ErrorIs(t, err, ledger.ErrTransactionFailed)
	assert.Equal(t, 1, fake.SentCount())
}

func TestSendAndConfirmTransportErrorStillConfirms(t *testing.T) {
	fake := ledgertest.NewFakeRPC()
	fake.Default = ledgertest.SendLandSilently
	client := ledgertest.NewClient(fake)

	sig, err := client.SendAndConfirm(context.Background(), transferRequest(newKey(t), newKey(t).PublicKey()))
	require.NoError(t, err)
	assert.False(t, sig.IsZero())
	assert.Equal(t, 1, fake.SentCount())
}

func TestSendAndConfirmOnSignedAborts(t *testing.T) {
	fake := ledgertest.NewFakeRPC()
	client := ledgertest.NewClient(fake)

	req := transferRequest(newKey(t), newKey(t).PublicKey())
	req.OnSigned = func(solana.Signature) error { return errors.New("db down") }

	_, err := client.SendAndConfirm(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 0, fake.SentCount())
}

func TestPriorityFeePrependsComputeBudget(t *testing.T) {
	fake := ledgertest.NewFakeRPC()
	client := ledger.NewClient(fake, ledger.Options{
		ConfirmTimeout:           50 * time.Millisecond,
		PollInterval:             time.Millisecond,
		PriorityFeeMicroLamports: 5000,
	}, utils.NopLogger())

	_, err := client.SendAndConfirm(context.Background(), transferRequest(newKey(t), newKey(t).PublicKey()))
	require.NoError(t, err)

	programs := ledgertest.Programs(fake.LandedTransactions()[0])
	require.Len(t, programs, 2)
	assert.Equal(t, solana.ComputeBudget, programs[0])
	assert.Equal(t, solana.SystemProgramID, programs[1])
}

func TestOutcome(t *testing.T) {
	fake := ledgertest.NewFakeRPC()
	client := ledgertest.NewClient(fake)
	ctx := context.Background()

	sig := solana.Signature{1}
	outcome, err := client.Outcome(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeUnknown, outcome)

	fake.SetStatus(sig, &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusProcessed})
	outcome, err = client.Outcome(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeUnknown, outcome)

	fake.SetStatus(sig, &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusFinalized})
	outcome, err = client.Outcome(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeLanded, outcome)

	fake.SetStatus(sig, &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusFinalized, Err: "boom"})
	outcome, err = client.Outcome(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeFailed, outcome)
}

func TestReceipt(t *testing.T) {
	fake := ledgertest.NewFakeRPC()
	client := ledgertest.NewClient(fake)
	sender := newKey(t)
	vault := newKey(t).PublicKey()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(5, sender.PublicKey(), vault).Build()},
		solana.Hash{7},
		solana.TransactionPayer(sender.PublicKey()),
	)
	require.NoError(t, err)
	_, err = tx.Sign(func(solana.PublicKey) *solana.PrivateKey { return &sender })
	require.NoError(t, err)

	sig, err := fake.AddReceipt(tx, rpc.TransactionMeta{
		PreBalances:  []uint64{100, 0, 1},
		PostBalances: []uint64{95, 5, 1},
	})
	require.NoError(t, err)

	receipt, err := client.Receipt(context.Background(), sig)
	require.NoError(t, err)
	assert.False(t, receipt.Failed)

	idx, ok := receipt.AccountIndex(vault)
	require.True(t, ok)
	assert.Equal(t, uint64(5), receipt.PostBalances[idx]-receipt.PreBalances[idx])

	_, ok = receipt.AccountIndex(newKey(t).PublicKey())
	assert.False(t, ok)

	_, err = client.Receipt(context.Background(), solana.Signature{9})
	assert.ErrorIs(t, err, ledger.ErrReceiptNotFound)
}

func TestAccountsAndBalances(t *testing.T) {
	fake := ledgertest.NewFakeRPC()
	client := ledgertest.NewClient(fake)
	ctx := context.Background()
	account := newKey(t).PublicKey()

	exists, err := client.AccountExists(ctx, account)
	require.NoError(t, err)
	assert.False(t, exists)

	amount, err := client.TokenBalance(ctx, account)
	require.NoError(t, err)
	assert.Zero(t, amount)

	fake.SetTokenBalance(account, 42)
	amount, err = client.TokenBalance(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), amount)

	fake.SetBalance(account, 7)
	lamports, err := client.Balance(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), lamports)
}

func TestMerkleTreeAccountSize(t *testing.T) {
	assert.Equal(t, uint64(1304), ledger.MerkleTreeAccountSize(3, 8, 0))
	assert.Equal(t, uint64(31800), ledger.MerkleTreeAccountSize(14, 64, 0))
	assert.Equal(t, uint64(31800+4094*32), ledger.MerkleTreeAccountSize(14, 64, 11))
}

func TestCreateTreeInstruction(t *testing.T) {
	tree := newKey(t).PublicKey()
	payer := newKey(t).PublicKey()

	ix, err := ledger.NewCreateTreeInstruction(tree, payer, payer, 14, 64, false)
	require.NoError(t, err)
	assert.Equal(t, ledger.BubblegumProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	discriminator := sha256.Sum256([]byte("global:create_tree"))
	require.Len(t, data, 18)
	assert.Equal(t, discriminator[:8], data[:8])
	assert.Equal(t, []byte{14, 0, 0, 0, 64, 0, 0, 0, 1, 0}, data[8:])

	authority, err := ledger.TreeAuthority(tree)
	require.NoError(t, err)
	accounts := ix.Accounts()
	assert.Equal(t, authority, accounts[0].PublicKey)
	assert.Equal(t, tree, accounts[1].PublicKey)
	assert.True(t, accounts[2].IsSigner)
}

func TestMintToCollectionInstruction(t *testing.T) {
	keys := make([]solana.PublicKey, 7)
	for i := range keys {
		keys[i] = newKey(t).PublicKey()
	}

	ix, err := ledger.NewMintToCollectionV1Instruction(ledger.MintToCollectionAccounts{
		Tree:                keys[0],
		LeafOwner:           keys[1],
		Payer:               keys[2],
		TreeDelegate:        keys[2],
		CollectionAuthority: keys[2],
		CollectionMint:      keys[3],
		CollectionMetadata:  keys[4],
		CollectionEdition:   keys[5],
	}, ledger.LeafMetadata{
		Name:       "Gift",
		Symbol:     "GFT",
		URI:        "https://example.com/gift.json",
		Collection: keys[3],
		Creators:   []ledger.Creator{{Address: keys[2], Share: 100}},
	})
	require.NoError(t, err)
	assert.Len(t, ix.Accounts(), 16)

	data, err := ix.Data()
	require.NoError(t, err)
	discriminator := sha256.Sum256([]byte("global:mint_to_collection_v1"))
	assert.Equal(t, discriminator[:8], data[:8])
	// name length prefix
	assert.Equal(t, []byte{4, 0, 0, 0}, data[8:12])
	assert.Equal(t, "Gift", string(data[12:16]))
}

func TestPool(t *testing.T) {
	devnet := ledgertest.NewClient(ledgertest.NewFakeRPC())
	unhealthy := ledgertest.NewFakeRPC()
	unhealthy.Unhealthy = true
	mainnet := ledgertest.NewClient(unhealthy)

	pool := ledger.NewPool(models.NetworkDevnet, map[models.Network]*ledger.Client{
		models.NetworkDevnet:  devnet,
		models.NetworkMainnet: mainnet,
	})

	c, err := pool.For("")
	require.NoError(t, err)
	assert.Same(t, devnet, c)

	c, err = pool.For(models.NetworkMainnet)
	require.NoError(t, err)
	assert.Same(t, mainnet, c)

	_, err = pool.For(models.NetworkTestnet)
	assert.ErrorIs(t, err, ledger.ErrUnknownNetwork)

	assert.Error(t, pool.Healthy(context.Background()))
}
