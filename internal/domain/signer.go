package domain

// SettlementTerms are the economic fields a venue requires cryptographic
// authorization over before accepting an order. Amounts are fixed-point
// strings in the venue's native scale so no precision is lost between the
// quantizer and the signer.
type SettlementTerms struct {
	// BaseAssetID and QuoteAssetID are venue-specific asset identifiers.
	BaseAssetID  string
	QuoteAssetID string
	// BaseAmount and QuoteAmount are the quantized amounts being exchanged.
	BaseAmount  string
	QuoteAmount string
	// FeeRateBps is the venue fee the signature covers.
	FeeRateBps int64
	// PositionRef is the account's settlement position identifier.
	PositionRef string
	// ExpiresAt is a unix timestamp after which the signature is void.
	ExpiresAt int64
	// IsLong is the direction from the signer's perspective.
	IsLong bool
}

// Settlement is the signer's authorization of a SettlementTerms.
type Settlement struct {
	Signature    string
	PublicKeyRef string
	PositionRef  string
	ExpiresAt    int64
}

// SettlementSigner authorizes an order's economic terms. It is a pure
// function of (terms, keys): implementations hold their own key material and
// must not be reimplemented inside the execution path; the submitter only
// ever consumes this interface.
type SettlementSigner interface {
	Sign(terms SettlementTerms) (Settlement, error)
}
