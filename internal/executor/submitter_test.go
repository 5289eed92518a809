package executor

import (
	"context"
	"strconv"
	"testing"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// signingVenue wraps fakeVenue with the settlement-terms surface a
// settlement-signed venue exposes.
type signingVenue struct {
	*fakeVenue
	termsSeen []domain.SettlementTerms
}

func (s *signingVenue) RequiresSettlementSigning() bool { return true }

func (s *signingVenue) SettlementTerms(ctx context.Context, order domain.VenueOrder, account domain.Account) (domain.SettlementTerms, error) {
	terms := domain.SettlementTerms{
		BaseAssetID:  "eth",
		QuoteAssetID: "usdc",
		BaseAmount:   strconv.FormatFloat(order.Size, 'f', -1, 64),
		QuoteAmount:  strconv.FormatFloat(order.Size*order.Price, 'f', -1, 64),
		FeeRateBps:   account.FeeRateBps,
		PositionRef:  account.PositionRef,
		ExpiresAt:    1_900_000_000,
		IsLong:       order.Side == domain.SideLong,
	}
	s.termsSeen = append(s.termsSeen, terms)
	return terms, nil
}

type fakeSigner struct {
	signed []domain.SettlementTerms
}

func (f *fakeSigner) Sign(terms domain.SettlementTerms) (domain.Settlement, error) {
	f.signed = append(f.signed, terms)
	return domain.Settlement{
		Signature:    "0xsigned",
		PublicKeyRef: "0xpubkey",
		PositionRef:  terms.PositionRef,
		ExpiresAt:    terms.ExpiresAt,
	}, nil
}

func quantized(size, price float64) domain.QuantizedOrder {
	return domain.QuantizedOrder{
		Request: domain.OrderRequest{Symbol: "ETH-USD", Side: domain.SideLong, Kind: domain.OrderKindLimit},
		Size:    size,
		Price:   price,
	}
}

func TestSubmitterSignsWhenVenueRequiresIt(t *testing.T) {
	sv := &signingVenue{fakeVenue: newFakeVenue()}
	signer := &fakeSigner{}
	sub := NewSubmitter(sv, signer, passLimiter{}, testLogger())

	account := domain.Account{PositionRef: "pos-7", FeeRateBps: 25}
	out, err := sub.Submit(context.Background(), quantized(0.1, 3000), account)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.ExternalID != "ord-1" {
		t.Errorf("external id = %s, want ord-1", out.ExternalID)
	}
	if out.ClientOrderID == "" {
		t.Error("client order id is empty")
	}

	if len(signer.signed) != 1 {
		t.Fatalf("signer invoked %d times, want 1", len(signer.signed))
	}
	if signer.signed[0].PositionRef != "pos-7" || signer.signed[0].FeeRateBps != 25 {
		t.Errorf("signer saw terms %+v, account fields not propagated", signer.signed[0])
	}

	got := sv.submitted[0]
	if got.Settlement == nil {
		t.Fatal("submitted order carries no settlement")
	}
	if got.Settlement.Signature != "0xsigned" || got.Settlement.PublicKeyRef != "0xpubkey" {
		t.Errorf("settlement = %+v, signer output not attached", got.Settlement)
	}
	if got.Settlement.PositionRef != "pos-7" {
		t.Errorf("settlement position ref = %s, want pos-7", got.Settlement.PositionRef)
	}
}

func TestSubmitterSkipsSigningWhenNotRequired(t *testing.T) {
	fv := newFakeVenue()
	signer := &fakeSigner{}
	sub := NewSubmitter(fv, signer, passLimiter{}, testLogger())

	if _, err := sub.Submit(context.Background(), quantized(0.1, 3000), domain.Account{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(signer.signed) != 0 {
		t.Errorf("signer invoked %d times, want 0", len(signer.signed))
	}
	if fv.submitted[0].Settlement != nil {
		t.Error("unsigned venue received a settlement")
	}
}

// requiresButNoTerms claims to need signing without exposing terms; the
// submitter must refuse rather than submit unsigned.
type requiresButNoTerms struct{ *fakeVenue }

func (requiresButNoTerms) RequiresSettlementSigning() bool { return true }

func TestSubmitterRejectsVenueWithoutTerms(t *testing.T) {
	sub := NewSubmitter(requiresButNoTerms{newFakeVenue()}, &fakeSigner{}, passLimiter{}, testLogger())
	if _, err := sub.Submit(context.Background(), quantized(0.1, 3000), domain.Account{}); err == nil {
		t.Fatal("expected an error for a signing venue without settlement terms")
	}
}

func TestSubmitterRejectsMissingSigner(t *testing.T) {
	sv := &signingVenue{fakeVenue: newFakeVenue()}
	sub := NewSubmitter(sv, nil, passLimiter{}, testLogger())
	if _, err := sub.Submit(context.Background(), quantized(0.1, 3000), domain.Account{}); err == nil {
		t.Fatal("expected an error when the venue requires signing and no signer is configured")
	}
}

func TestSubmitterClientOrderIDsUnique(t *testing.T) {
	fv := newFakeVenue()
	sub := NewSubmitter(fv, nil, passLimiter{}, testLogger())

	a, err := sub.Submit(context.Background(), quantized(0.1, 3000), domain.Account{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	b, err := sub.Submit(context.Background(), quantized(0.1, 3000), domain.Account{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if a.ClientOrderID == b.ClientOrderID {
		t.Errorf("two submissions share client order id %s", a.ClientOrderID)
	}
}
