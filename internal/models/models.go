package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AssetKind string

const (
	AssetNative    AssetKind = "native"
	AssetFungible  AssetKind = "fungible"
	NativeSymbol             = "SOL"
	NativeDecimals uint8     = 9
)

type Network string

const (
	NetworkMainnet Network = "mainnet-beta"
	NetworkDevnet  Network = "devnet"
	NetworkTestnet Network = "testnet"
)

var ValidNetworks = map[Network]bool{
	NetworkMainnet: true,
	NetworkDevnet:  true,
	NetworkTestnet: true,
}

// User is created on first successful wallet authentication and never updated.
type User struct {
	Address   string    `gorm:"primaryKey;type:varchar(64)" json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type LinkStatus string

const (
	LinkActive    LinkStatus = "active"
	LinkSettling  LinkStatus = "settling"
	LinkRefunding LinkStatus = "refunding"
	LinkClaimed   LinkStatus = "claimed"
)

type Link struct {
	ID               string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Network          Network         `gorm:"type:varchar(16);not null" json:"network"`
	Amount           decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"amount"`
	AssetKind        AssetKind       `gorm:"type:varchar(16);not null" json:"asset_kind"`
	Mint             *string         `gorm:"type:varchar(64)" json:"mint,omitempty"`
	Decimals         *uint8          `json:"decimals,omitempty"`
	Symbol           string          `gorm:"type:varchar(16)" json:"symbol,omitempty"`
	DepositTxRef     string          `gorm:"type:varchar(128);uniqueIndex;not null" json:"deposit_tx_ref"`
	Message          string          `json:"message,omitempty"`
	Status           LinkStatus      `gorm:"type:varchar(16);index;not null;default:active" json:"status"`
	Claimed          bool            `gorm:"not null;default:false" json:"claimed"`
	ClaimedAt        *time.Time      `json:"claimed_at,omitempty"`
	ClaimTxRef       *string         `gorm:"type:varchar(128)" json:"claim_tx_ref,omitempty"`
	ClaimedByAddress *string         `gorm:"type:varchar(64)" json:"claimed_by_address,omitempty"`
	CreatedByAddress string          `gorm:"type:varchar(64);index;not null" json:"created_by_address"`
	CreatedAt        time.Time       `json:"created_at"`

	// In-flight settlement: set while Status is settling or refunding.
	// SettlementID names the attempt that owns the link; writes from any other attempt are refused.
	SettlementID     *string    `gorm:"type:varchar(36)" json:"-"`
	PendingRecipient *string    `gorm:"type:varchar(64)" json:"-"`
	PendingTxRef     *string    `gorm:"type:varchar(128)" json:"-"`
	PendingSince     *time.Time `json:"-"`
}

func (l *Link) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = LinkActive
	}
	return nil
}

func (l *Link) IsFungible() bool {
	return l.AssetKind == AssetFungible
}

type CandyMachineLink struct {
	ID                  string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ProvisionID         string    `gorm:"type:varchar(36);index;not null" json:"provision_id"`
	Name                string    `gorm:"not null" json:"name"`
	Description         string    `json:"description,omitempty"`
	CandymachineAddress string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"candymachine_address"`
	Size                int       `gorm:"not null" json:"size"`
	AlreadyMinted       int       `gorm:"not null;default:0" json:"already_minted"`
	Symbol              string    `gorm:"type:varchar(16)" json:"symbol,omitempty"`
	Royalty             *float64  `json:"royalty,omitempty"`
	ExternalURL         string    `json:"external_url,omitempty"`
	Network             Network   `gorm:"type:varchar(16);not null" json:"network"`
	ImageURL            string    `json:"image_url"`
	MetadataURL         string    `json:"metadata_url"`
	Message             string    `json:"message,omitempty"`
	CreatedByAddress    string    `gorm:"type:varchar(64);index;not null" json:"created_by_address"`
	CreatedAt           time.Time `json:"created_at"`
	Claimers            []Claimer `gorm:"foreignKey:LinkID" json:"claimers"`
}

func (l *CandyMachineLink) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

func (l *CandyMachineLink) Remaining() int {
	return l.Size - l.AlreadyMinted
}

type ClaimerStatus string

const (
	ClaimerPending ClaimerStatus = "pending"
	ClaimerMinted  ClaimerStatus = "minted"
)

// Claimer is a one-per-wallet mint reservation; pending rows count against supply.
type Claimer struct {
	ID             uint          `gorm:"primaryKey" json:"-"`
	LinkID         string        `gorm:"type:varchar(36);not null;uniqueIndex:idx_link_claimer" json:"-"`
	ClaimerAddress string        `gorm:"type:varchar(64);not null;uniqueIndex:idx_link_claimer" json:"claimer_address"`
	Status         ClaimerStatus `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	ClaimedAt      *time.Time    `json:"claimed_at,omitempty"`
	ClaimSignature *string       `gorm:"type:varchar(128)" json:"claim_signature,omitempty"`
	PendingTxRef   *string       `gorm:"type:varchar(128)" json:"-"`
	PendingSince   *time.Time    `json:"-"`
	ReservedAt     time.Time     `json:"-"`
}

type ProvisionStep string

const (
	StepPending          ProvisionStep = "pending"
	StepTreeAllocated    ProvisionStep = "tree_allocated"
	StepCollectionMinted ProvisionStep = "collection_minted"
	StepReady            ProvisionStep = "ready"
)

// CollectionProvision checkpoints the multi-transaction tree and collection setup.
type CollectionProvision struct {
	ID               string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Network          Network       `gorm:"type:varchar(16);not null" json:"network"`
	CreatedByAddress string        `gorm:"type:varchar(64);index;not null" json:"created_by_address"`
	Name             string        `json:"name"`
	Symbol           string        `json:"symbol"`
	MetadataURL      string        `json:"metadata_url"`
	SellerFeeBps     uint16        `json:"seller_fee_bps"`
	Size             int           `json:"size"`
	MaxDepth         uint32        `json:"max_depth"`
	MaxBufferSize    uint32        `json:"max_buffer_size"`
	CanopyDepth      uint32        `json:"canopy_depth"`
	Step             ProvisionStep `gorm:"type:varchar(32);not null;default:pending" json:"step"`
	LastError        string        `json:"last_error,omitempty"`
	FailedStep       string        `gorm:"type:varchar(32)" json:"failed_step,omitempty"`

	TreeAddress        *string `gorm:"type:varchar(64);uniqueIndex" json:"tree_address,omitempty"`
	TreeSecret         *string `gorm:"type:varchar(128)" json:"-"`
	TreeTxRef          *string `gorm:"type:varchar(128)" json:"tree_tx_ref,omitempty"`
	TreeAuthority      *string `gorm:"type:varchar(64)" json:"tree_authority,omitempty"`
	CollectionMint     *string `gorm:"type:varchar(64)" json:"collection_mint,omitempty"`
	CollectionSecret   *string `gorm:"type:varchar(128)" json:"-"`
	CollectionTxRef    *string `gorm:"type:varchar(128)" json:"collection_tx_ref,omitempty"`
	CollectionMetadata *string `gorm:"type:varchar(64)" json:"collection_metadata,omitempty"`
	CollectionEdition  *string `gorm:"type:varchar(64)" json:"collection_edition,omitempty"`
	SizeTxRef          *string `gorm:"type:varchar(128)" json:"size_tx_ref,omitempty"`

	// Runner holds the lease on the provision while LeaseUntil is in the future.
	Runner     *string    `gorm:"type:varchar(36)" json:"-"`
	LeaseUntil *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *CollectionProvision) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Step == "" {
		p.Step = StepPending
	}
	return nil
}

type AuthNonce struct {
	Nonce     string    `gorm:"primaryKey;type:varchar(36)"`
	ExpiresAt time.Time `gorm:"index"`
}
