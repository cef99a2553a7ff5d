// Package provisioner creates compressed NFT collections step by step and mints their leaves.
//
// Every step persists its artifacts (generated keypairs, derived addresses) before anything is
// submitted and the signature of every attempt as soon as it is signed. A provision that stopped
// anywhere can therefore be resumed: the stored signature is looked up first and the step is only
// resubmitted when the ledger shows it did not happen. Resubmitting the tree or mint creation reuses
// the stored keypair, so a duplicate can only fail, never create a second account.
package provisioner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Fi44er/sol_gift/internal/ledger"
	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/treeplan"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

var (
	ErrStepFailed = errors.New("collection provisioning step failed")
	ErrNotReady   = errors.New("collection is not provisioned")
)

// Step names reported in StepError and CollectionProvision.FailedStep.
const (
	StepAllocateTree      = "allocate_tree"
	StepMintCollection    = "mint_collection"
	StepSetCollectionSize = "set_collection_size"
)

// StepError names the step that failed and what already exists on the ledger.
type StepError struct {
	Step      string
	Artifacts map[string]string
	Err       error
}

func (e *StepError) Error() string {
	keys := make([]string, 0, len(e.Artifacts))
	for k := range e.Artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Artifacts[k])
	}
	return fmt.Sprintf("%v: %s: %v (artifacts: %s)", ErrStepFailed, e.Step, e.Err, strings.Join(parts, ", "))
}

func (e *StepError) Unwrap() []error {
	return []error{ErrStepFailed, e.Err}
}

type Store interface {
	SaveProvision(ctx context.Context, p *models.CollectionProvision) error
}

type Provisioner struct {
	pool    *ledger.Pool
	store   Store
	issuer  solana.PrivateKey
	planner *treeplan.Planner
	logger  *utils.Logger
}

func New(pool *ledger.Pool, store Store, issuer solana.PrivateKey, planner *treeplan.Planner, logger *utils.Logger) *Provisioner {
	return &Provisioner{pool: pool, store: store, issuer: issuer, planner: planner, logger: logger}
}

func (p *Provisioner) Planner() *treeplan.Planner {
	return p.planner
}

// Run drives the provision from its last checkpoint to ready.
func (p *Provisioner) Run(ctx context.Context, prov *models.CollectionProvision) error {
	client, err := p.pool.For(prov.Network)
	if err != nil {
		return err
	}
	if prov.MaxDepth == 0 {
		plan := p.planner.Plan(prov.Size)
		prov.MaxDepth, prov.MaxBufferSize, prov.CanopyDepth = plan.MaxDepth, plan.MaxBufferSize, plan.CanopyDepth
	}

	for prov.Step != models.StepReady {
		var (
			name string
			next models.ProvisionStep
			err  error
		)
		switch prov.Step {
		case models.StepPending:
			name, next = StepAllocateTree, models.StepTreeAllocated
			err = p.allocateTree(ctx, client, prov)
		case models.StepTreeAllocated:
			name, next = StepMintCollection, models.StepCollectionMinted
			err = p.mintCollection(ctx, client, prov)
		case models.StepCollectionMinted:
			name, next = StepSetCollectionSize, models.StepReady
			err = p.setCollectionSize(ctx, client, prov)
		default:
			return fmt.Errorf("provision %s: unknown step %q", prov.ID, prov.Step)
		}

		// checkpoints outlive the request that triggered them
		saveCtx := context.WithoutCancel(ctx)
		if err != nil {
			prov.FailedStep = name
			prov.LastError = err.Error()
			if saveErr := p.store.SaveProvision(saveCtx, prov); saveErr != nil {
				p.logger.Errorf("❌ provision %s: failed to record failure: %v", prov.ID, saveErr)
			}
			p.logger.Warnf("⚠️ provision %s: step %s failed: %v", prov.ID, name, err)
			return &StepError{Step: name, Artifacts: Artifacts(prov), Err: err}
		}

		prov.Step = next
		prov.FailedStep = ""
		prov.LastError = ""
		if err := p.store.SaveProvision(saveCtx, prov); err != nil {
			return err
		}
		p.logger.Infof("✅ provision %s: %s done", prov.ID, name)
	}
	return nil
}

// Artifacts lists what the provision has created or derived so far.
func Artifacts(prov *models.CollectionProvision) map[string]string {
	out := map[string]string{}
	add := func(name string, v *string) {
		if v != nil && *v != "" {
			out[name] = *v
		}
	}
	add("tree", prov.TreeAddress)
	add("tree_authority", prov.TreeAuthority)
	add("tree_tx", prov.TreeTxRef)
	add("collection_mint", prov.CollectionMint)
	add("collection_metadata", prov.CollectionMetadata)
	add("collection_edition", prov.CollectionEdition)
	add("collection_tx", prov.CollectionTxRef)
	add("size_tx", prov.SizeTxRef)
	return out
}

type step struct {
	prov         *models.CollectionProvision
	txRef        **string
	instructions []solana.Instruction
	signers      []solana.PrivateKey
	// exists reports whether the step's account is on the ledger; nil when the step creates none.
	exists func(ctx context.Context) (bool, error)
}

// submit sends the step unless a previous attempt is known to have landed.
func (p *Provisioner) submit(ctx context.Context, client *ledger.Client, s step) error {
	prev := *s.txRef
	if prev != nil {
		done, err := p.previousLanded(ctx, client, *prev, s.exists)
		if err != nil {
			return err
		}
		if done {
			p.logger.Infof("🔁 provision %s: earlier attempt %s already landed", s.prov.ID, utils.MaskShort(*prev))
			return nil
		}
	}

	_, err := client.SendAndConfirm(ctx, ledger.SendRequest{
		Instructions: s.instructions,
		Signers:      s.signers,
		OnSigned: func(sig solana.Signature) error {
			ref := sig.String()
			*s.txRef = &ref
			return p.store.SaveProvision(ctx, s.prov)
		},
	})
	if errors.Is(err, ledger.ErrTransactionFailed) && prev != nil {
		// the resubmission may have failed only because the earlier one did the work
		if done, checkErr := p.previousLanded(ctx, client, *prev, s.exists); checkErr == nil && done {
			*s.txRef = prev
			return nil
		}
	}
	return err
}

func (p *Provisioner) previousLanded(ctx context.Context, client *ledger.Client, ref string, exists func(context.Context) (bool, error)) (bool, error) {
	sig, err := solana.SignatureFromBase58(ref)
	if err != nil {
		return false, fmt.Errorf("stored signature %q: %w", ref, err)
	}
	outcome, err := client.Outcome(ctx, sig)
	if err != nil {
		return false, err
	}
	switch outcome {
	case ledger.OutcomeLanded:
		return true, nil
	case ledger.OutcomeFailed:
		return false, nil
	}
	if exists == nil {
		return false, nil
	}
	return exists(ctx)
}

func (p *Provisioner) allocateTree(ctx context.Context, client *ledger.Client, prov *models.CollectionProvision) error {
	treeKey, err := p.keypair(ctx, prov, &prov.TreeSecret, func(key solana.PrivateKey) error {
		tree := key.PublicKey()
		authority, err := ledger.TreeAuthority(tree)
		if err != nil {
			return err
		}
		treeAddr, authorityAddr := tree.String(), authority.String()
		prov.TreeAddress, prov.TreeAuthority = &treeAddr, &authorityAddr
		return nil
	})
	if err != nil {
		return err
	}
	tree := treeKey.PublicKey()
	payer := p.issuer.PublicKey()

	space := ledger.MerkleTreeAccountSize(prov.MaxDepth, prov.MaxBufferSize, prov.CanopyDepth)
	rent, err := client.RentExemption(ctx, space)
	if err != nil {
		return err
	}
	createTree, err := ledger.NewCreateTreeInstruction(tree, payer, payer, prov.MaxDepth, prov.MaxBufferSize, false)
	if err != nil {
		return err
	}

	p.logger.Infof("🌳 provision %s: allocating tree %s (depth %d, buffer %d, canopy %d, %d bytes)",
		prov.ID, utils.MaskShort(tree.String()), prov.MaxDepth, prov.MaxBufferSize, prov.CanopyDepth, space)

	return p.submit(ctx, client, step{
		prov:  prov,
		txRef: &prov.TreeTxRef,
		instructions: []solana.Instruction{
			system.NewCreateAccountInstruction(rent, space, ledger.AccountCompressionProgramID, payer, tree).Build(),
			createTree,
		},
		signers: []solana.PrivateKey{p.issuer, treeKey},
		exists:  func(ctx context.Context) (bool, error) { return client.AccountExists(ctx, tree) },
	})
}

func (p *Provisioner) mintCollection(ctx context.Context, client *ledger.Client, prov *models.CollectionProvision) error {
	mintKey, err := p.keypair(ctx, prov, &prov.CollectionSecret, func(key solana.PrivateKey) error {
		mint := key.PublicKey()
		metadata, err := ledger.MetadataAddress(mint)
		if err != nil {
			return err
		}
		edition, err := ledger.MasterEditionAddress(mint)
		if err != nil {
			return err
		}
		mintAddr, metadataAddr, editionAddr := mint.String(), metadata.String(), edition.String()
		prov.CollectionMint, prov.CollectionMetadata, prov.CollectionEdition = &mintAddr, &metadataAddr, &editionAddr
		return nil
	})
	if err != nil {
		return err
	}
	mint := mintKey.PublicKey()
	issuer := p.issuer.PublicKey()

	metadata, err := solana.PublicKeyFromBase58(*prov.CollectionMetadata)
	if err != nil {
		return err
	}
	edition, err := solana.PublicKeyFromBase58(*prov.CollectionEdition)
	if err != nil {
		return err
	}
	issuerATA, _, err := solana.FindAssociatedTokenAddress(issuer, mint)
	if err != nil {
		return err
	}
	rent, err := client.RentExemption(ctx, token.MINT_SIZE)
	if err != nil {
		return err
	}

	createMetadata, err := ledger.NewCreateMetadataAccountV3Instruction(ledger.CreateMetadataAccounts{
		Metadata:        metadata,
		Mint:            mint,
		MintAuthority:   issuer,
		Payer:           issuer,
		UpdateAuthority: issuer,
	}, ledger.CollectionMetadata{
		Name:                 prov.Name,
		Symbol:               prov.Symbol,
		URI:                  prov.MetadataURL,
		SellerFeeBasisPoints: prov.SellerFeeBps,
		Creators:             []ledger.Creator{{Address: issuer, Verified: true, Share: 100}},
	})
	if err != nil {
		return err
	}
	createEdition, err := ledger.NewCreateMasterEditionV3Instruction(ledger.CreateMasterEditionAccounts{
		Edition:         edition,
		Mint:            mint,
		UpdateAuthority: issuer,
		MintAuthority:   issuer,
		Payer:           issuer,
		Metadata:        metadata,
	}, 0)
	if err != nil {
		return err
	}

	p.logger.Infof("🎨 provision %s: minting collection %s", prov.ID, utils.MaskShort(mint.String()))

	return p.submit(ctx, client, step{
		prov:  prov,
		txRef: &prov.CollectionTxRef,
		instructions: []solana.Instruction{
			system.NewCreateAccountInstruction(rent, token.MINT_SIZE, solana.TokenProgramID, issuer, mint).Build(),
			token.NewInitializeMint2Instruction(0, issuer, issuer, mint).Build(),
			associatedtokenaccount.NewCreateInstruction(issuer, issuer, mint).Build(),
			token.NewMintToInstruction(1, mint, issuerATA, issuer, []solana.PublicKey{}).Build(),
			createMetadata,
			createEdition,
		},
		signers: []solana.PrivateKey{p.issuer, mintKey},
		exists:  func(ctx context.Context) (bool, error) { return client.AccountExists(ctx, edition) },
	})
}

// setCollectionSize marks the collection as sized, starting at zero; every leaf minted
// into it through bubblegum increments the on-chain count.
func (p *Provisioner) setCollectionSize(ctx context.Context, client *ledger.Client, prov *models.CollectionProvision) error {
	if prov.CollectionMint == nil || prov.CollectionMetadata == nil {
		return errors.New("collection mint missing from checkpoint")
	}
	mint, err := solana.PublicKeyFromBase58(*prov.CollectionMint)
	if err != nil {
		return err
	}
	metadata, err := solana.PublicKeyFromBase58(*prov.CollectionMetadata)
	if err != nil {
		return err
	}

	ix, err := ledger.NewSetCollectionSizeInstruction(metadata, p.issuer.PublicKey(), mint, 0)
	if err != nil {
		return err
	}
	return p.submit(ctx, client, step{
		prov:         prov,
		txRef:        &prov.SizeTxRef,
		instructions: []solana.Instruction{ix},
		signers:      []solana.PrivateKey{p.issuer},
	})
}

// keypair loads the step's stored secret or generates one, derives artifacts from it
// and checkpoints them before anything is sent.
func (p *Provisioner) keypair(ctx context.Context, prov *models.CollectionProvision, secret **string, derive func(solana.PrivateKey) error) (solana.PrivateKey, error) {
	if *secret != nil {
		return utils.ParsePrivateKey(**secret)
	}

	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	if err := derive(key); err != nil {
		return nil, err
	}
	encoded := utils.EncodePrivateKey(key)
	*secret = &encoded
	if err := p.store.SaveProvision(ctx, prov); err != nil {
		return nil, err
	}
	return key, nil
}

// Leaf is one compressed NFT minted for a claimer.
type Leaf struct {
	Owner solana.PublicKey
	Name  string
	URI   string
	// OnSigned receives the signature of each attempt before it is submitted.
	OnSigned func(sig solana.Signature) error
}

// MintLeaf mints one compressed NFT into a ready collection. Supply and one-per-wallet
// checks belong to the caller and must be taken before calling.
func (p *Provisioner) MintLeaf(ctx context.Context, prov *models.CollectionProvision, leaf Leaf) (solana.Signature, error) {
	if prov.Step != models.StepReady {
		return solana.Signature{}, fmt.Errorf("%w: %s is at %s", ErrNotReady, prov.ID, prov.Step)
	}
	client, err := p.pool.For(prov.Network)
	if err != nil {
		return solana.Signature{}, err
	}

	var keys [4]solana.PublicKey
	for i, s := range []*string{prov.TreeAddress, prov.CollectionMint, prov.CollectionMetadata, prov.CollectionEdition} {
		if s == nil {
			return solana.Signature{}, fmt.Errorf("%w: missing artifacts", ErrNotReady)
		}
		if keys[i], err = solana.PublicKeyFromBase58(*s); err != nil {
			return solana.Signature{}, err
		}
	}
	tree, mint, metadata, edition := keys[0], keys[1], keys[2], keys[3]
	issuer := p.issuer.PublicKey()

	name := leaf.Name
	if name == "" {
		name = prov.Name
	}
	uri := leaf.URI
	if uri == "" {
		uri = prov.MetadataURL
	}

	ix, err := ledger.NewMintToCollectionV1Instruction(ledger.MintToCollectionAccounts{
		Tree:                tree,
		LeafOwner:           leaf.Owner,
		Payer:               issuer,
		TreeDelegate:        issuer,
		CollectionAuthority: issuer,
		CollectionMint:      mint,
		CollectionMetadata:  metadata,
		CollectionEdition:   edition,
	}, ledger.LeafMetadata{
		Name:                 name,
		Symbol:               prov.Symbol,
		URI:                  uri,
		SellerFeeBasisPoints: prov.SellerFeeBps,
		Creators:             []ledger.Creator{{Address: issuer, Verified: false, Share: 100}},
		Collection:           mint,
	})
	if err != nil {
		return solana.Signature{}, err
	}

	sig, err := client.SendAndConfirm(ctx, ledger.SendRequest{
		Instructions: []solana.Instruction{ix},
		Signers:      []solana.PrivateKey{p.issuer},
		OnSigned:     leaf.OnSigned,
	})
	if err != nil {
		return sig, err
	}
	p.logger.Infof("🎁 minted leaf of %s to %s: %s", utils.MaskShort(tree.String()), utils.MaskShort(leaf.Owner.String()), utils.MaskShort(sig.String()))
	return sig, nil
}
