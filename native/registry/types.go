package registry

// Merchant captures the registration record for a coupon-issuing merchant.
// Merchants are deactivated rather than deleted: coupons reference the
// identifier permanently.
type Merchant struct {
	ID            string
	Name          string
	WalletAddress [20]byte
	Active        bool
	CreatedAt     int64
	UpdatedAt     int64
}

// Clone returns a copy of the merchant record.
func (m *Merchant) Clone() *Merchant {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// Program captures the configuration for a coupon program. IssuedCount is
// monotonic and only ever mutated by the coupon ledger inside the issuance
// transaction, so the cap invariant holds under concurrent issuers.
type Program struct {
	ID               [32]byte
	MerchantID       string
	ValidityPeriod   int64
	MaxIssuance      uint64
	IssuedCount      uint64
	KeyVersion       uint32
	VerificationKeys map[uint32][]byte
	Active           bool
	CreatedAt        int64
}

// Clone returns a deep copy of the program record so callers can safely
// mutate the copy without affecting the stored instance.
func (p *Program) Clone() *Program {
	if p == nil {
		return nil
	}
	clone := *p
	if p.VerificationKeys != nil {
		clone.VerificationKeys = make(map[uint32][]byte, len(p.VerificationKeys))
		for version, key := range p.VerificationKeys {
			clone.VerificationKeys[version] = append([]byte(nil), key...)
		}
	}
	return &clone
}

// VerificationKey returns the key bytes recorded for a version, if present.
func (p *Program) VerificationKey(version uint32) ([]byte, bool) {
	if p == nil || p.VerificationKeys == nil {
		return nil, false
	}
	key, ok := p.VerificationKeys[version]
	if !ok || len(key) == 0 {
		return nil, false
	}
	return append([]byte(nil), key...), true
}
