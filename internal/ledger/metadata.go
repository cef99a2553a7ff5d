package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// token metadata instruction tags
const (
	createMasterEditionV3Tag   = 17
	createMetadataAccountV3Tag = 33
	setCollectionSizeTag       = 34
)

func MasterEditionAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{
		[]byte("metadata"),
		solana.TokenMetadataProgramID.Bytes(),
		mint.Bytes(),
		[]byte("edition"),
	}, solana.TokenMetadataProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive master edition: %w", err)
	}
	return addr, nil
}

func MetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindTokenMetadataAddress(mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive metadata: %w", err)
	}
	return addr, nil
}

type CollectionMetadata struct {
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             []Creator
}

type CreateMetadataAccounts struct {
	Metadata        solana.PublicKey
	Mint            solana.PublicKey
	MintAuthority   solana.PublicKey
	Payer           solana.PublicKey
	UpdateAuthority solana.PublicKey
}

func NewCreateMetadataAccountV3Instruction(acc CreateMetadataAccounts, meta CollectionMetadata) (solana.Instruction, error) {
	w := newBorshWriter()
	w.u8(createMetadataAccountV3Tag)
	w.str(meta.Name)
	w.str(meta.Symbol)
	w.str(meta.URI)
	w.u16(meta.SellerFeeBasisPoints)
	w.option(len(meta.Creators) > 0)
	if len(meta.Creators) > 0 {
		w.length(len(meta.Creators))
		for _, c := range meta.Creators {
			w.pubkey(c.Address)
			w.boolean(c.Verified)
			w.u8(c.Share)
		}
	}
	w.option(false) // collection
	w.option(false) // uses
	w.boolean(true) // mutable
	w.option(false) // collection details, set afterwards
	data, err := w.bytes()
	if err != nil {
		return nil, fmt.Errorf("encode create metadata: %w", err)
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(acc.Metadata).WRITE(),
		solana.Meta(acc.Mint),
		solana.Meta(acc.MintAuthority).SIGNER(),
		solana.Meta(acc.Payer).WRITE().SIGNER(),
		solana.Meta(acc.UpdateAuthority).SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}
	return solana.NewInstruction(solana.TokenMetadataProgramID, accounts, data), nil
}

type CreateMasterEditionAccounts struct {
	Edition         solana.PublicKey
	Mint            solana.PublicKey
	UpdateAuthority solana.PublicKey
	MintAuthority   solana.PublicKey
	Payer           solana.PublicKey
	Metadata        solana.PublicKey
}

func NewCreateMasterEditionV3Instruction(acc CreateMasterEditionAccounts, maxSupply uint64) (solana.Instruction, error) {
	w := newBorshWriter()
	w.u8(createMasterEditionV3Tag)
	w.option(true)
	w.u64(maxSupply)
	data, err := w.bytes()
	if err != nil {
		return nil, fmt.Errorf("encode create master edition: %w", err)
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(acc.Edition).WRITE(),
		solana.Meta(acc.Mint).WRITE(),
		solana.Meta(acc.UpdateAuthority).SIGNER(),
		solana.Meta(acc.MintAuthority).SIGNER(),
		solana.Meta(acc.Payer).WRITE().SIGNER(),
		solana.Meta(acc.Metadata).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SystemProgramID),
	}
	return solana.NewInstruction(solana.TokenMetadataProgramID, accounts, data), nil
}

// NewSetCollectionSizeInstruction turns an unsized collection into a sized one.
func NewSetCollectionSizeInstruction(metadata, authority, mint solana.PublicKey, size uint64) (solana.Instruction, error) {
	w := newBorshWriter()
	w.u8(setCollectionSizeTag)
	w.u64(size)
	data, err := w.bytes()
	if err != nil {
		return nil, fmt.Errorf("encode set collection size: %w", err)
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(metadata).WRITE(),
		solana.Meta(authority).WRITE().SIGNER(),
		solana.Meta(mint),
	}
	return solana.NewInstruction(solana.TokenMetadataProgramID, accounts, data), nil
}
