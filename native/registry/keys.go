package registry

// Storage key layout for the merchant and program tables. The coupon ledger
// mutates programs inside its own issuance transaction, so the key builders
// are exported.

func MerchantKey(id string) []byte {
	return append([]byte("registry/merchant/"), id...)
}

func MerchantIndexKey() []byte {
	return []byte("registry/merchants")
}

func ProgramKey(id [32]byte) []byte {
	return append([]byte("registry/program/"), id[:]...)
}

func MerchantProgramsKey(merchantID string) []byte {
	return append([]byte("registry/merchant-programs/"), merchantID...)
}
