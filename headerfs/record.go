package headerfs

import (
	"encoding/binary"
	"fmt"

	"github.com/meowcoin-foundation/meowheaders/chaincfg"
	"github.com/meowcoin-foundation/meowheaders/wire"
)

// RecordSize is the fixed width of every on-disk record: every
// header, regardless of its wire length, occupies exactly 120 bytes once
// written to a chain file.
const RecordSize = wire.ExtendedLen

// isZero40 reports whether the trailing padding region of a record is all
// zero, the signal that a record's meaningful bytes end at wire.LegacyLen.
func isZero40(pad []byte) bool {
	for _, b := range pad {
		if b != 0 {
			return false
		}
	}
	return true
}

// isZeroRecord reports whether buf is the all-zero "empty slot" sentinel
// used by preallocated-but-not-yet-filled checkpoint regions.
func isZeroRecord(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// decodeRecord decodes a 120-byte on-disk record at height into a
// BlockHeader, undoing the store's own zero-padding. Unlike
// wire.Decode, which infers a header's variant from the true wire length of
// an as-yet-unsliced chunk buffer, decodeRecord must first recover that true
// length from a buffer that has always been widened to 120 bytes on disk:
//
//   - at or past AuxPowActivationHeight, the version bit decides: bit 8 set
//     means the 80 meaningful bytes were padded for storage (AuxPOW); clear
//     means the record's full 120 bytes are meaningful (Extended).
//   - below AuxPowActivationHeight, the trailing region is the tell: all
//     zero means an 80-byte Legacy header padded for storage; anything else
//     means a genuine 120-byte Extended (KawPow/MeowPow) header. An Extended
//     header whose 64-bit nonce and mix hash are both zero therefore reads
//     back as Legacy.
func decodeRecord(buf []byte, height uint32, params *chaincfg.Params) (*wire.BlockHeader, error) {
	if len(buf) != RecordSize {
		return nil, fmt.Errorf("headerfs: record must be %d bytes, got %d", RecordSize, len(buf))
	}

	version := int32(binary.LittleEndian.Uint32(buf[0:4]))
	hasAuxBit := version&(1<<8) != 0
	pad := buf[wire.LegacyLen:RecordSize]

	if height >= params.AuxPowActivationHeight {
		if hasAuxBit && isZero40(pad) {
			return wire.Decode(buf[:wire.LegacyLen], height, params.AuxPowActivationHeight)
		}
		return wire.Decode(buf, height, params.AuxPowActivationHeight)
	}

	if isZero40(pad) {
		return wire.Decode(buf[:wire.LegacyLen], height, params.AuxPowActivationHeight)
	}
	return wire.Decode(buf, height, params.AuxPowActivationHeight)
}

// DecodeSwapRootHeader decodes a raw 120-byte record into a header, for
// chainmgr's reorg swap to recover the identity of a chain's new root
// header once its backing file has had bytes written into it directly.
func DecodeSwapRootHeader(buf []byte, height uint32, params *chaincfg.Params) (*wire.BlockHeader, error) {
	return decodeRecord(buf, height, params)
}

// encodeRecord serializes h to its native length and pads Legacy/AuxPOW
// headers out to the full 120-byte record with zeroes.
func encodeRecord(h *wire.BlockHeader) ([]byte, error) {
	buf, err := wire.Encode(h)
	if err != nil {
		return nil, err
	}
	if len(buf) == RecordSize {
		return buf, nil
	}
	out := make([]byte, RecordSize)
	copy(out, buf)
	return out, nil
}

// SplitChunk normalises a concatenation of variably-sized wire headers
// into a slice of
// already-decoded headers plus their native-length byte slices, deciding
// each record's length with recordWireLen (version bit past AuxPOW
// activation, embedded timestamp before it). start is the height of the
// first header in buf.
// Exported so chainmgr's chunk verifier uses exactly the same table
// SaveChunk uses to lay records out on disk.
func SplitChunk(buf []byte, start uint32, params *chaincfg.Params) ([]*wire.BlockHeader, [][]byte, error) {
	policy := wire.HeightTimestampPolicy{
		KawpowActivationTS:  params.KawpowActivationTS,
		MeowpowActivationTS: params.MeowpowActivationTS,
	}

	var headers []*wire.BlockHeader
	var raws [][]byte

	p := 0
	height := start
	for p < len(buf) {
		hlen, err := recordWireLen(buf[p:], height, params, policy)
		if err != nil {
			return nil, nil, err
		}
		if p+hlen > len(buf) {
			return nil, nil, fmt.Errorf("headerfs: truncated chunk: %d trailing bytes at height %d", len(buf)-p, height)
		}
		raw := buf[p : p+hlen]
		h, err := wire.Decode(raw, height, params.AuxPowActivationHeight)
		if err != nil {
			return nil, nil, err
		}
		headers = append(headers, h)
		raws = append(raws, raw)
		p += hlen
		height++
	}
	return headers, raws, nil
}

// recordWireLen decides how many bytes the next wire header at height
// occupies. Past AuxPOW activation the version bit settles it outright (an
// AuxPOW header is genuinely 80 bytes on the wire); before activation the
// embedded timestamp decides between the two SHA-family lengths and the
// native KawPow length, mirroring wire.PeekLen.
func recordWireLen(buf []byte, height uint32, params *chaincfg.Params, policy wire.HeightTimestampPolicy) (int, error) {
	if height >= params.AuxPowActivationHeight {
		if len(buf) < 4 {
			return 0, fmt.Errorf("headerfs: truncated header at height %d", height)
		}
		version := int32(binary.LittleEndian.Uint32(buf[0:4]))
		if version&(1<<8) != 0 {
			return wire.LegacyLen, nil
		}
		return wire.ExtendedLen, nil
	}
	return wire.PeekLen(buf, policy)
}
