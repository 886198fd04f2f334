package x402

import (
	"fmt"
	"strconv"

	"github.com/CedrosPay/x402-solanatoolkit/internal/apierrors"
	"github.com/CedrosPay/x402-solanatoolkit/internal/money"
	"github.com/CedrosPay/x402-solanatoolkit/pkg/x402/solana"
)

// Scheme is the only payment scheme this toolkit generates requirements for.
// The protocol reserves room for others (see the channel scheme open
// extension point in the verification pipeline); this value is what goes on
// the wire in Descriptor.Scheme.
const Scheme = "exact"

// Quoter generates payment requirements for a fixed recipient wallet on a
// fixed network and asset. Constructing one resolves and caches the
// recipient's associated token account so repeated quotes at different
// prices don't repeat the derivation.
type Quoter struct {
	network  money.Network
	asset    money.Asset
	mint     string
	payToATA string
}

// NewQuoter derives the recipient wallet's associated token account for
// assetCode on network and returns a Quoter ready to generate requirements.
func NewQuoter(recipientWalletAddress, network, assetCode string) (*Quoter, error) {
	if err := solana.ValidateAddress(recipientWalletAddress); err != nil {
		return nil, NewVerificationError(apierrors.ErrCodeConfigError, err)
	}
	normalizedNetwork, err := solana.NormalizeNetwork(network)
	if err != nil {
		return nil, NewVerificationError(apierrors.ErrCodeConfigError, err)
	}
	asset, err := money.GetAsset(assetCode)
	if err != nil {
		return nil, NewVerificationError(apierrors.ErrCodeConfigError, err)
	}
	mint, ok := money.MintForAsset(normalizedNetwork, assetCode)
	if !ok {
		return nil, NewVerificationError(apierrors.ErrCodeConfigError,
			fmt.Errorf("no known mint for asset %s on network %s", assetCode, normalizedNetwork))
	}
	ata, err := solana.DeriveAssociatedTokenAccount(recipientWalletAddress, mint)
	if err != nil {
		return nil, NewVerificationError(apierrors.ErrCodeConfigError, err)
	}
	return &Quoter{
		network:  normalizedNetwork,
		asset:    asset,
		mint:     mint,
		payToATA: ata,
	}, nil
}

// Generate builds a single-element PaymentRequirements for a USD price.
func (q *Quoter) Generate(priceUSD float64, opts QuoteOptions) (PaymentRequirements, error) {
	descriptor, err := q.generateDescriptor(priceUSD, opts)
	if err != nil {
		return PaymentRequirements{}, err
	}
	return PaymentRequirements{
		X402Version: CurrentVersion,
		Accepts:     []Descriptor{descriptor},
	}, nil
}

// GenerateMultiple builds a PaymentRequirements listing one Descriptor per
// price, for tiered pricing where a client may satisfy any one of them.
func (q *Quoter) GenerateMultiple(pricesUSD []float64, opts QuoteOptions) (PaymentRequirements, error) {
	if len(pricesUSD) == 0 {
		return PaymentRequirements{}, NewVerificationError(apierrors.ErrCodeConfigError,
			fmt.Errorf("at least one price is required"))
	}
	descriptors := make([]Descriptor, 0, len(pricesUSD))
	for _, price := range pricesUSD {
		descriptor, err := q.generateDescriptor(price, opts)
		if err != nil {
			return PaymentRequirements{}, err
		}
		descriptors = append(descriptors, descriptor)
	}
	return PaymentRequirements{
		X402Version: CurrentVersion,
		Accepts:     descriptors,
	}, nil
}

func (q *Quoter) generateDescriptor(priceUSD float64, opts QuoteOptions) (Descriptor, error) {
	if priceUSD <= 0 {
		return Descriptor{}, NewVerificationError(apierrors.ErrCodeConfigError,
			fmt.Errorf("price must be positive, got %v", priceUSD))
	}
	atomic, err := money.USDToSmallestUnit(priceUSD, q.asset)
	if err != nil {
		return Descriptor{}, NewVerificationError(apierrors.ErrCodeConfigError, err)
	}
	timeout := opts.TimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultTimeoutSeconds
	}
	return Descriptor{
		Scheme:            Scheme,
		Network:           solana.WireNetwork(q.network),
		MaxAmountRequired: strconv.FormatInt(atomic, 10),
		Resource:          opts.Resource,
		Description:       opts.Description,
		PayTo: PayToTarget{
			Address: q.payToATA,
			Asset:   q.asset.Code,
		},
		Timeout: timeout,
	}, nil
}

// Network returns the Quoter's canonical network, for callers composing a
// verification call from the same configuration.
func (q *Quoter) Network() money.Network { return q.network }

// Mint returns the resolved SPL mint address backing this Quoter's asset.
func (q *Quoter) Mint() string { return q.mint }

// PayToATA returns the derived recipient token sub-account.
func (q *Quoter) PayToATA() string { return q.payToATA }
