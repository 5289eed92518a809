// Package crypto provides key management and the EIP-712 settlement signer
// used by venues that require cryptographic authorization of an order's
// economic terms before acceptance.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// Settlement(uint256 baseAsset,uint256 quoteAsset,uint256 baseAmount,uint256 quoteAmount,uint256 feeRateBps,uint256 positionId,uint256 expiration,uint8 side)
	settlementTypeHash = ethcrypto.Keccak256(
		[]byte("Settlement(uint256 baseAsset,uint256 quoteAsset,uint256 baseAmount,uint256 quoteAmount,uint256 feeRateBps,uint256 positionId,uint256 expiration,uint8 side)"),
	)
)

// SettlementSigner implements domain.SettlementSigner using EIP-712 typed
// data over secp256k1. It is a pure function of (terms, key): it holds no
// venue state and performs no network calls.
type SettlementSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domainSep  []byte // cached EIP-712 domain separator hash
}

// NewSettlementSigner creates a signer from a hex-encoded secp256k1 private
// key and the venue's settlement chain ID.
func NewSettlementSigner(privateKeyHex string, chainID int) (*SettlementSigner, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	s := &SettlementSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}
	s.domainSep = buildDomainSeparator("PerpSettlement", "1", chainID)
	return s, nil
}

// Address returns the Ethereum address derived from the signer's key.
func (s *SettlementSigner) Address() common.Address {
	return s.address
}

// Sign authorizes the given settlement terms and returns the signature, the
// signer's public key reference, and the position reference the signature
// covers.
func (s *SettlementSigner) Sign(terms domain.SettlementTerms) (domain.Settlement, error) {
	structHash, err := settlementStructHash(terms)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	digest := eip712Hash(s.domainSep, structHash)
	sig, err := s.signDigest(digest)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	return domain.Settlement{
		Signature:    sig,
		PublicKeyRef: s.address.Hex(),
		PositionRef:  terms.PositionRef,
		ExpiresAt:    terms.ExpiresAt,
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func buildDomainSeparator(name, version string, chainID int) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(int64(chainID))),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *SettlementSigner) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// settlementStructHash encodes and hashes SettlementTerms according to
// EIP-712. Asset IDs and amounts arrive as decimal strings so no precision
// is lost between the quantizer and the signature.
func settlementStructHash(t domain.SettlementTerms) ([]byte, error) {
	baseAsset, ok := new(big.Int).SetString(t.BaseAssetID, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid base asset id %q", t.BaseAssetID)
	}
	quoteAsset, ok := new(big.Int).SetString(t.QuoteAssetID, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid quote asset id %q", t.QuoteAssetID)
	}
	baseAmt, ok := new(big.Int).SetString(t.BaseAmount, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid base amount %q", t.BaseAmount)
	}
	quoteAmt, ok := new(big.Int).SetString(t.QuoteAmount, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid quote amount %q", t.QuoteAmount)
	}
	positionID, ok := new(big.Int).SetString(t.PositionRef, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid position ref %q", t.PositionRef)
	}

	side := big.NewInt(0)
	if !t.IsLong {
		side = big.NewInt(1)
	}

	return ethcrypto.Keccak256(
		concatBytes(
			settlementTypeHash,
			bigIntTo32Bytes(baseAsset),
			bigIntTo32Bytes(quoteAsset),
			bigIntTo32Bytes(baseAmt),
			bigIntTo32Bytes(quoteAmt),
			bigIntTo32Bytes(big.NewInt(t.FeeRateBps)),
			bigIntTo32Bytes(positionID),
			bigIntTo32Bytes(big.NewInt(t.ExpiresAt)),
			bigIntTo32Bytes(side),
		),
	), nil
}

// concatBytes appends byte slices into one buffer.
func concatBytes(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// bigIntTo32Bytes left-pads a big.Int to a 32-byte word.
func bigIntTo32Bytes(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

var _ domain.SettlementSigner = (*SettlementSigner)(nil)
