// Package headerverify applies linkage, bits, and proof-of-work checks to
// one header under a caller-supplied policy.
package headerverify

import (
	"fmt"

	"github.com/meowcoin-foundation/meowheaders/chaincfg"
	"github.com/meowcoin-foundation/meowheaders/chainhash"
	"github.com/meowcoin-foundation/meowheaders/pow"
	"github.com/meowcoin-foundation/meowheaders/wire"
)

// Reason enumerates the ways an InvalidHeaderError can fail.
type Reason string

const (
	ReasonPrevHashMismatch Reason = "prev hash mismatch"
	ReasonBitsMismatch     Reason = "bits mismatch"
	ReasonHashMismatch     Reason = "hash mismatch"
	ReasonInsufficientPoW  Reason = "insufficient proof of work"
	ReasonMalformed        Reason = "malformed"
)

// InvalidHeaderError reports a header that failed one of Verify's checks.
type InvalidHeaderError struct {
	Reason Reason
	Detail string
}

func (e *InvalidHeaderError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invalid header: %s", e.Reason)
	}
	return fmt.Sprintf("invalid header: %s (%s)", e.Reason, e.Detail)
}

func invalid(reason Reason, detail string) *InvalidHeaderError {
	return &InvalidHeaderError{Reason: reason, Detail: detail}
}

// Options parameterizes a single Verify call: everything the caller (the
// chain manager) already knows about the header's context, so this package
// never touches a store directly.
type Options struct {
	// PrevHash is the hash the header's PrevBlock must equal.
	PrevHash chainhash.Hash

	// Target is the expected compact-bits target for this height, as
	// computed by the applicable retarget engine (or trusted from the
	// header itself, post-checkpoint).
	Target uint32

	// ExpectedHash, if non-nil, is checked against the header's identity
	// hash as a final step.
	ExpectedHash *chainhash.Hash

	// SkipBits, when true, skips the bits-equals-target check (used
	// post-checkpoint where the header's own bits are trusted).
	SkipBits bool

	// Height is the header's height, used for the sampling policy.
	Height uint32

	// MaxCheckpointHeight is the checkpoint horizon; above it the
	// sampling policy applies.
	MaxCheckpointHeight uint32

	// SamplingModulus is the tunable sampling policy: headers past the
	// checkpoint are fully validated only when height%SamplingModulus ==
	// 0. Zero disables sampling (validate everything).
	SamplingModulus uint32

	// Testnet short-circuits every check below linkage to success.
	Testnet bool
}

// Verify runs the ordered header checks: linkage, then (outside testnet)
// the merged-mining short-circuit, the sampling policy, bits, proof of
// work, and the optional expected-hash match. A nil return means the
// header is acceptable under the given options; a header the sampling
// policy skips (so its bits/PoW are trusted) is also a nil-error success.
func Verify(h *wire.BlockHeader, kernels *pow.Registry, params *chaincfg.Params, opts Options) error {
	// 1. Linkage.
	if !h.PrevBlock.IsEqual(&opts.PrevHash) {
		return invalid(ReasonPrevHashMismatch, fmt.Sprintf("have %s want %s", h.PrevBlock, opts.PrevHash))
	}

	// 2. Testnet: return success unconditionally past linkage.
	if opts.Testnet {
		return nil
	}

	// 3. Merged-mining short-circuit: PoW is trusted from the parent
	// chain via the server; only linkage (already checked) and an
	// optional expected-hash match apply.
	if h.Variant == wire.AuxPOW {
		if opts.ExpectedHash != nil {
			hash, err := h.BlockHash()
			if err != nil {
				return invalid(ReasonMalformed, err.Error())
			}
			if !hash.IsEqual(opts.ExpectedHash) {
				return invalid(ReasonHashMismatch, "")
			}
		}
		return nil
	}

	// 4. Sampling policy: past the checkpoint horizon, only a sampled
	// subset of headers has PoW (and bits) actually checked; the rest
	// are trusted, though their prev_hash link was already verified
	// above.
	if opts.Height > opts.MaxCheckpointHeight && !shouldSamplePoW(opts.Height, opts.SamplingModulus) {
		return nil
	}

	// 5. Bits check.
	if !opts.SkipBits && h.Bits != opts.Target {
		return invalid(ReasonBitsMismatch, fmt.Sprintf("have %08x want %08x", h.Bits, opts.Target))
	}

	// 6. Proof of work.
	algo := selectAlgorithm(h, params)
	header80, err := nativeHeader80(h)
	if err != nil {
		return invalid(ReasonMalformed, err.Error())
	}
	powHash, err := kernels.Hash(algo, header80, pow.Extras{Nonce64: h.Nonce64, MixHash: h.MixHash})
	if err != nil {
		return err
	}
	target, err := pow.DecodeCompact(h.Bits)
	if err != nil {
		return invalid(ReasonMalformed, err.Error())
	}
	if !pow.HashMeetsTarget(powHash, target) {
		return invalid(ReasonInsufficientPoW, "")
	}

	// 7. Expected-hash check, if supplied.
	if opts.ExpectedHash != nil {
		hash, err := h.BlockHash()
		if err != nil {
			return invalid(ReasonMalformed, err.Error())
		}
		if !hash.IsEqual(opts.ExpectedHash) {
			return invalid(ReasonHashMismatch, "")
		}
	}

	return nil
}

func shouldSamplePoW(height uint32, modulus uint32) bool {
	if modulus == 0 {
		return true
	}
	return height%modulus == 0
}

// selectAlgorithm picks the PoW algorithm a header's timestamp and variant
// imply: x16r before the x16rv2 activation timestamp, x16rv2 after (both
// within the Legacy variant); KawPow before the MeowPow activation
// timestamp, MeowPow after (both within the Extended variant).
func selectAlgorithm(h *wire.BlockHeader, params *chaincfg.Params) pow.Algorithm {
	if h.Variant == wire.Extended {
		if h.Timestamp >= params.MeowpowActivationTS {
			return pow.AlgoMeowPow
		}
		return pow.AlgoKawPow
	}
	if h.Timestamp >= params.X16Rv2ActivationTS {
		return pow.AlgoX16Rv2
	}
	return pow.AlgoX16R
}

// nativeHeader80 returns the leading 80 bytes a PoW kernel operates over.
func nativeHeader80(h *wire.BlockHeader) ([]byte, error) {
	buf, err := wire.Encode(h)
	if err != nil {
		return nil, err
	}
	if len(buf) < 80 {
		return nil, fmt.Errorf("headerverify: header too short")
	}
	return buf[:80], nil
}
