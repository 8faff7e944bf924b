// Package wire implements the header codec: the boundary
// between the on-disk/wire byte representation of a header and its
// semantic, tagged-variant Go representation.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/meowcoin-foundation/meowheaders/chainhash"
)

// Variant tags which shape a BlockHeader's wire/storage bytes take.
type Variant uint8

const (
	// Legacy is the 80-byte pre-AuxPoW header, ending in a 32-bit nonce.
	Legacy Variant = iota
	// AuxPOW is bit-for-bit the same 80-byte layout as Legacy, but its
	// PoW is trusted from a merged-mined parent chain rather than
	// checked locally.
	AuxPOW
	// Extended is the 120-byte KawPow/MeowPow header: nheight, a 64-bit
	// nonce, and a 32-byte mix hash replace the 32-bit nonce.
	Extended
)

func (v Variant) String() string {
	switch v {
	case Legacy:
		return "legacy"
	case AuxPOW:
		return "auxpow"
	case Extended:
		return "extended"
	default:
		return "unknown"
	}
}

// versionAuxPowBit is bit 8 of the version field.
const versionAuxPowBit = 1 << 8

// LegacyLen and ExtendedLen are the two valid wire lengths.
const (
	LegacyLen   = 80
	ExtendedLen = 120
)

// BlockHeader is the semantic representation of a header, carrying exactly
// the fields that exist for its Variant.
type BlockHeader struct {
	Variant Variant

	Version    int32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  uint32
	Bits       uint32
	Height     uint32

	// Legacy / AuxPOW only.
	Nonce uint32

	// Extended only.
	NHeight uint32
	Nonce64 uint64
	MixHash chainhash.Hash
}

// HasAuxPowBit reports whether bit 8 of Version is set, independent of
// variant — used by the variant-selection rule and by the verifier's
// merged-mining short-circuit.
func (h *BlockHeader) HasAuxPowBit() bool {
	return h.Version&versionAuxPowBit != 0
}

// BlockHash computes the header's identity hash: double SHA-256 over the
// header's native encoding (80 bytes for Legacy/AuxPOW, 120 for Extended).
// This is the hash used for previous-block linkage, height queries, and fork filenames
// — never the PoW hash.
func (h *BlockHeader) BlockHash() (chainhash.Hash, error) {
	buf, err := Encode(h)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.DoubleHashH(buf), nil
}

// SelectVariant implements the variant-selection rule for an as-yet
// undecoded buffer of the given wire length: an 80-byte buffer with the
// aux-pow version bit set past activation is AuxPOW, a 120-byte buffer
// whose trailing 40 bytes are zero under the same conditions is the padded
// form of one, and everything else falls to Legacy or Extended by length.
func SelectVariant(buf []byte, height uint32, auxPowActivation uint32) (Variant, error) {
	switch len(buf) {
	case LegacyLen:
		version := int32(binary.LittleEndian.Uint32(buf[0:4]))
		if height >= auxPowActivation && version&versionAuxPowBit != 0 {
			return AuxPOW, nil
		}
		return Legacy, nil

	case ExtendedLen:
		version := int32(binary.LittleEndian.Uint32(buf[0:4]))
		if height >= auxPowActivation && version&versionAuxPowBit != 0 && isZero(buf[80:120]) {
			return AuxPOW, nil
		}
		return Extended, nil

	default:
		return 0, fmt.Errorf("wire: invalid header length %d", len(buf))
	}
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// Decode decodes buf (either 80 or 120 bytes) into a BlockHeader at the
// given height, applying the SelectVariant rule.
func Decode(buf []byte, height uint32, auxPowActivation uint32) (*BlockHeader, error) {
	variant, err := SelectVariant(buf, height, auxPowActivation)
	if err != nil {
		return nil, err
	}

	h := &BlockHeader{Variant: variant, Height: height}
	h.Version = int32(binary.LittleEndian.Uint32(buf[0:4]))
	copy(h.PrevBlock[:], buf[4:36])
	copy(h.MerkleRoot[:], buf[36:68])
	h.Timestamp = binary.LittleEndian.Uint32(buf[68:72])
	h.Bits = binary.LittleEndian.Uint32(buf[72:76])

	switch variant {
	case Legacy, AuxPOW:
		h.Nonce = binary.LittleEndian.Uint32(buf[76:80])
	case Extended:
		h.NHeight = binary.LittleEndian.Uint32(buf[76:80])
		h.Nonce64 = binary.LittleEndian.Uint64(buf[80:88])
		copy(h.MixHash[:], buf[88:120])
	}
	return h, nil
}

// Encode serializes h to its native length: 80 bytes for Legacy/AuxPOW, 120
// for Extended. The codec never pads — padding to the 120-byte on-disk
// record shape is the chain store's concern alone.
func Encode(h *BlockHeader) ([]byte, error) {
	switch h.Variant {
	case Legacy, AuxPOW:
		buf := make([]byte, LegacyLen)
		encodeCommon(buf, h)
		binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
		return buf, nil

	case Extended:
		buf := make([]byte, ExtendedLen)
		encodeCommon(buf, h)
		binary.LittleEndian.PutUint32(buf[76:80], h.NHeight)
		binary.LittleEndian.PutUint64(buf[80:88], h.Nonce64)
		copy(buf[88:120], h.MixHash[:])
		return buf, nil

	default:
		return nil, fmt.Errorf("wire: unknown header variant %v", h.Variant)
	}
}

func encodeCommon(buf []byte, h *BlockHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Version))
	copy(buf[4:36], h.PrevBlock[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
}

// HeightTimestampPolicy is the minimal slice of chaincfg.Params the codec
// needs to decide a header's wire length from content alone, kept separate
// from chaincfg to avoid an import cycle (chaincfg has no need to know
// about wire).
type HeightTimestampPolicy struct {
	KawpowActivationTS  uint32
	MeowpowActivationTS uint32
}

// minPeekLen is the number of leading bytes (through the Timestamp field)
// needed to decide whether a record is 80 or 120 bytes long.
const minPeekLen = 72

// PeekLen reports the wire length (LegacyLen or ExtendedLen) of the next
// header in buf without fully decoding it, by reading its embedded
// Timestamp field. Used when splitting a chunk of concatenated, unframed
// records into individual headers.
func PeekLen(buf []byte, p HeightTimestampPolicy) (int, error) {
	if len(buf) < minPeekLen {
		return 0, fmt.Errorf("wire: buffer too short to determine header length")
	}
	ts := binary.LittleEndian.Uint32(buf[68:72])
	if ts >= p.KawpowActivationTS || ts >= p.MeowpowActivationTS {
		return ExtendedLen, nil
	}
	return LegacyLen, nil
}
