package rpc

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"zkcoupon/native/coupon"
	"zkcoupon/native/registry"
	"zkcoupon/native/wallet"
	"zkcoupon/zkproof"
)

type merchantView struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	WalletAddress common.Address `json:"walletAddress"`
	Active        bool           `json:"active"`
	CreatedAt     int64          `json:"createdAt"`
	UpdatedAt     int64          `json:"updatedAt"`
}

func newMerchantView(m *registry.Merchant) merchantView {
	return merchantView{
		ID:            m.ID,
		Name:          m.Name,
		WalletAddress: common.Address(m.WalletAddress),
		Active:        m.Active,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

type programView struct {
	ID             common.Hash `json:"id"`
	MerchantID     string      `json:"merchantId"`
	ValidityPeriod int64       `json:"validityPeriod"`
	MaxIssuance    uint64      `json:"maxIssuance"`
	IssuedCount    uint64      `json:"issuedCount"`
	KeyVersion     uint32      `json:"keyVersion"`
	Active         bool        `json:"active"`
	CreatedAt      int64       `json:"createdAt"`
}

func newProgramView(p *registry.Program) programView {
	return programView{
		ID:             common.Hash(p.ID),
		MerchantID:     p.MerchantID,
		ValidityPeriod: p.ValidityPeriod,
		MaxIssuance:    p.MaxIssuance,
		IssuedCount:    p.IssuedCount,
		KeyVersion:     p.KeyVersion,
		Active:         p.Active,
		CreatedAt:      p.CreatedAt,
	}
}

type walletView struct {
	Address     common.Address `json:"address"`
	CreatedAt   int64          `json:"createdAt"`
	RecoveredAt int64          `json:"recoveredAt,omitempty"`
}

// Commitments stay server-side; the view exposes only the address and
// lifecycle timestamps.
func newWalletView(w *wallet.Wallet) walletView {
	return walletView{
		Address:     common.Address(w.Address),
		CreatedAt:   w.CreatedAt,
		RecoveredAt: w.RecoveredAt,
	}
}

type couponView struct {
	TokenID            common.Hash    `json:"tokenId"`
	MerchantID         string         `json:"merchantId"`
	ProgramID          common.Hash    `json:"programId"`
	Owner              common.Address `json:"owner"`
	MetadataCommitment common.Hash    `json:"metadataCommitment"`
	KeyVersion         uint32         `json:"keyVersion"`
	IssuedAt           int64          `json:"issuedAt"`
	ExpiresAt          int64          `json:"expiresAt"`
	RedeemedAt         int64          `json:"redeemedAt,omitempty"`
	Status             string         `json:"status"`
}

func newCouponView(c *coupon.Coupon) couponView {
	return couponView{
		TokenID:            common.Hash(c.TokenID),
		MerchantID:         c.MerchantID,
		ProgramID:          common.Hash(c.ProgramID),
		Owner:              common.Address(c.Owner),
		MetadataCommitment: common.Hash(c.MetadataCommitment),
		KeyVersion:         c.KeyVersion,
		IssuedAt:           c.IssuedAt,
		ExpiresAt:          c.ExpiresAt,
		RedeemedAt:         c.RedeemedAt,
		Status:             c.Status.String(),
	}
}

// publicInputsPayload is the wire form of the proof binding context.
type publicInputsPayload struct {
	Kind               string          `json:"kind"`
	ProgramID          *common.Hash    `json:"programId,omitempty"`
	TokenID            *common.Hash    `json:"tokenId,omitempty"`
	Wallet             *common.Address `json:"wallet,omitempty"`
	MetadataCommitment *common.Hash    `json:"metadataCommitment,omitempty"`
	KeyVersion         uint32          `json:"keyVersion,omitempty"`
}

func (p publicInputsPayload) toInputs() (zkproof.PublicInputs, error) {
	var inputs zkproof.PublicInputs
	switch p.Kind {
	case "issuance":
		inputs.Kind = zkproof.KindIssuance
	case "redemption":
		inputs.Kind = zkproof.KindRedemption
	case "recovery":
		inputs.Kind = zkproof.KindRecovery
	default:
		return inputs, fmt.Errorf("unknown proof kind %q", p.Kind)
	}
	if p.ProgramID != nil {
		inputs.ProgramID = [32]byte(*p.ProgramID)
	}
	if p.TokenID != nil {
		inputs.TokenID = [32]byte(*p.TokenID)
	}
	if p.Wallet != nil {
		inputs.Wallet = [20]byte(*p.Wallet)
	}
	if p.MetadataCommitment != nil {
		inputs.MetadataCommitment = [32]byte(*p.MetadataCommitment)
	}
	inputs.KeyVersion = p.KeyVersion
	return inputs, nil
}

func parseHash(raw string) (common.Hash, error) {
	b, err := hexutil.Decode(raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid hash %q", raw)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid hash length %d", len(b))
	}
	return common.BytesToHash(b), nil
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}
