package ledger

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	BubblegumProgramID          = solana.MustPublicKeyFromBase58("BGUMAp9Gq7iTEuizy4pqaxsTyUCBK68MDfK752saRPUY")
	AccountCompressionProgramID = solana.MustPublicKeyFromBase58("cmtDvXumGCrqC1Age74AVPhSRVXJMd8PJS91L8KbNCK")
	NoopProgramID               = solana.MustPublicKeyFromBase58("noopb9bkMVfRPU8AsbpTUg8AQkHtKwMYZiFUjNRtMmV")
)

const (
	merkleTreeHeaderSize = 2 + 54
	// sequence number, active index, buffer size
	merkleTreeCountersSize = 8 + 8 + 8
)

// MerkleTreeAccountSize is the byte size of a concurrent merkle tree account.
func MerkleTreeAccountSize(maxDepth, maxBufferSize, canopyDepth uint32) uint64 {
	depth := uint64(maxDepth)
	changeLog := 32 + 32*depth + 4 + 4
	rightmostPath := 32*depth + 32 + 4 + 4

	var canopy uint64
	if nodes := (uint64(1) << (canopyDepth + 1)) - 2; nodes > 0 {
		canopy = nodes * 32
	}

	return merkleTreeHeaderSize + merkleTreeCountersSize + uint64(maxBufferSize)*changeLog + rightmostPath + canopy
}

func TreeAuthority(tree solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{tree.Bytes()}, BubblegumProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive tree authority: %w", err)
	}
	return addr, nil
}

func BubblegumSigner() (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("collection_cpi")}, BubblegumProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive bubblegum signer: %w", err)
	}
	return addr, nil
}

func anchorDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// borshWriter keeps the first encoding error so builders can write field after field.
type borshWriter struct {
	buf bytes.Buffer
	enc *bin.Encoder
	err error
}

func newBorshWriter() *borshWriter {
	w := &borshWriter{}
	w.enc = bin.NewBorshEncoder(&w.buf)
	return w
}

func (w *borshWriter) do(f func() error) {
	if w.err == nil {
		w.err = f()
	}
}

func (w *borshWriter) raw(b []byte) {
	w.do(func() error { _, err := w.enc.Write(b); return err })
}

func (w *borshWriter) u8(v uint8)     { w.do(func() error { return w.enc.WriteUint8(v) }) }
func (w *borshWriter) u16(v uint16)   { w.do(func() error { return w.enc.WriteUint16(v, bin.LE) }) }
func (w *borshWriter) u32(v uint32)   { w.do(func() error { return w.enc.WriteUint32(v, bin.LE) }) }
func (w *borshWriter) u64(v uint64)   { w.do(func() error { return w.enc.WriteUint64(v, bin.LE) }) }
func (w *borshWriter) boolean(v bool) { w.do(func() error { return w.enc.WriteBool(v) }) }
func (w *borshWriter) str(s string)   { w.do(func() error { return w.enc.WriteString(s) }) }
func (w *borshWriter) option(some bool) {
	w.do(func() error { return w.enc.WriteOption(some) })
}
func (w *borshWriter) length(n int) { w.do(func() error { return w.enc.WriteLength(n) }) }
func (w *borshWriter) pubkey(k solana.PublicKey) {
	w.raw(k.Bytes())
}

func (w *borshWriter) bytes() ([]byte, error) {
	return w.buf.Bytes(), w.err
}

// NewCreateTreeInstruction initializes an allocated tree account through bubblegum.
func NewCreateTreeInstruction(tree, payer, creator solana.PublicKey, maxDepth, maxBufferSize uint32, public bool) (solana.Instruction, error) {
	authority, err := TreeAuthority(tree)
	if err != nil {
		return nil, err
	}

	w := newBorshWriter()
	w.raw(anchorDiscriminator("create_tree"))
	w.u32(maxDepth)
	w.u32(maxBufferSize)
	w.option(true)
	w.boolean(public)
	data, err := w.bytes()
	if err != nil {
		return nil, fmt.Errorf("encode create_tree: %w", err)
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(authority).WRITE(),
		solana.Meta(tree).WRITE(),
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(creator).SIGNER(),
		solana.Meta(NoopProgramID),
		solana.Meta(AccountCompressionProgramID),
		solana.Meta(solana.SystemProgramID),
	}
	return solana.NewInstruction(BubblegumProgramID, accounts, data), nil
}

type Creator struct {
	Address  solana.PublicKey
	Verified bool
	Share    uint8
}

// LeafMetadata is the metadata stored in a compressed leaf.
type LeafMetadata struct {
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             []Creator
	Collection           solana.PublicKey
}

type MintToCollectionAccounts struct {
	Tree                solana.PublicKey
	LeafOwner           solana.PublicKey
	Payer               solana.PublicKey
	TreeDelegate        solana.PublicKey
	CollectionAuthority solana.PublicKey
	CollectionMint      solana.PublicKey
	CollectionMetadata  solana.PublicKey
	CollectionEdition   solana.PublicKey
}

func NewMintToCollectionV1Instruction(acc MintToCollectionAccounts, meta LeafMetadata) (solana.Instruction, error) {
	authority, err := TreeAuthority(acc.Tree)
	if err != nil {
		return nil, err
	}
	signer, err := BubblegumSigner()
	if err != nil {
		return nil, err
	}

	w := newBorshWriter()
	w.raw(anchorDiscriminator("mint_to_collection_v1"))
	w.str(meta.Name)
	w.str(meta.Symbol)
	w.str(meta.URI)
	w.u16(meta.SellerFeeBasisPoints)
	w.boolean(false) // primary sale happened
	w.boolean(true)  // mutable
	w.option(false)  // edition nonce
	w.option(true)   // token standard
	w.u8(0)          // NonFungible
	w.option(true)   // collection
	w.boolean(false)
	w.pubkey(meta.Collection)
	w.option(false) // uses
	w.u8(0)         // token program version: original
	w.length(len(meta.Creators))
	for _, c := range meta.Creators {
		w.pubkey(c.Address)
		w.boolean(c.Verified)
		w.u8(c.Share)
	}
	data, err := w.bytes()
	if err != nil {
		return nil, fmt.Errorf("encode mint_to_collection_v1: %w", err)
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(authority).WRITE(),
		solana.Meta(acc.LeafOwner),
		solana.Meta(acc.LeafOwner),
		solana.Meta(acc.Tree).WRITE(),
		solana.Meta(acc.Payer).SIGNER(),
		solana.Meta(acc.TreeDelegate).SIGNER(),
		solana.Meta(acc.CollectionAuthority).SIGNER(),
		solana.Meta(BubblegumProgramID), // no collection authority record
		solana.Meta(acc.CollectionMint),
		solana.Meta(acc.CollectionMetadata).WRITE(),
		solana.Meta(acc.CollectionEdition),
		solana.Meta(signer),
		solana.Meta(NoopProgramID),
		solana.Meta(AccountCompressionProgramID),
		solana.Meta(solana.TokenMetadataProgramID),
		solana.Meta(solana.SystemProgramID),
	}
	return solana.NewInstruction(BubblegumProgramID, accounts, data), nil
}
