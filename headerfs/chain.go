// Package headerfs implements the chain store: a per-chain append-only
// file of fixed-size 120-byte records, the genesis-rooted main chain plus
// zero or more fork chains linked by parent pointers. Flat files, explicit
// fsync, and an advisory directory lock are the whole persistence story —
// the fork filename carries all the metadata a chain needs to be rebuilt.
package headerfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/meowcoin-foundation/meowheaders/chaincfg"
	"github.com/meowcoin-foundation/meowheaders/chainhash"
	"github.com/meowcoin-foundation/meowheaders/log"
	"github.com/meowcoin-foundation/meowheaders/wire"
)

var logger = log.Disabled

// UseLogger installs l as the package-level logger.
func UseLogger(l log.Logger) { logger = l }

// MissingHeaderError is raised by ReadHeader and the lookups built on it
// when a height has no record.
type MissingHeaderError struct {
	Height uint32
}

func (e *MissingHeaderError) Error() string {
	return fmt.Sprintf("headerfs: missing header at height %d", e.Height)
}

// ErrShortRead is returned by a file read that came back short of a full
// record. Fatal for the operation; the caller decides whether to retry.
var ErrShortRead = errors.New("headerfs: short read, expected a full record")

// forksDirName is the subdirectory holding fork chain files.
const forksDirName = "forks"

// mainChainFilename is the main chain's fixed filename.
const mainChainFilename = "blockchain_headers"

// Chain is one rooted path of the header forest. Every method
// that touches the file or size fields takes mu; Parent is a plain pointer,
// never itself locked by a method on this Chain.
type Chain struct {
	mu sync.Mutex

	dir    string
	params *chaincfg.Params

	Forkpoint     uint32
	ForkpointHash chainhash.Hash
	PrevHash      chainhash.Hash // zero Hash means "no prev" (main chain)
	Parent        *Chain

	size uint32 // cached record count, refreshed after every write
}

// NewMainChain constructs the genesis-rooted main chain and ensures its
// backing file exists, preallocated out to the last checkpoint height. The
// preallocation is a single sparse write to the last byte, so the platform
// reserves the space without physically zeroing it.
func NewMainChain(dir string, params *chaincfg.Params) (*Chain, error) {
	c := &Chain{
		dir:           dir,
		params:        params,
		Forkpoint:     0,
		ForkpointHash: params.Genesis,
	}
	if err := os.MkdirAll(filepath.Join(dir, forksDirName), 0o755); err != nil {
		return nil, err
	}
	if err := c.preallocate(); err != nil {
		return nil, err
	}
	c.updateSize()
	return c, nil
}

// NewForkChain constructs a fork chain rooted at forkpoint, whose record at
// forkpoint-1 (the one immediately prior) belongs to parent.
// The caller is responsible for creating the backing file (fork, or
// start-up recovery from a fork2_* filename).
func NewForkChain(dir string, params *chaincfg.Params, forkpoint uint32, forkpointHash, prevHash chainhash.Hash, parent *Chain) *Chain {
	c := &Chain{
		dir:           dir,
		params:        params,
		Forkpoint:     forkpoint,
		ForkpointHash: forkpointHash,
		PrevHash:      prevHash,
		Parent:        parent,
	}
	c.updateSize()
	return c
}

func (c *Chain) preallocate() error {
	length := int64(RecordSize) * int64(c.params.MaxCheckpointHeight()+1)
	path := c.mainPath()
	fi, err := os.Stat(path)
	if err == nil && fi.Size() >= length {
		return nil
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if length > 0 {
		if _, err := f.Seek(length-1, 0); err != nil {
			return err
		}
		if _, err := f.Write([]byte{0}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) mainPath() string {
	return filepath.Join(c.dir, mainChainFilename)
}

// ForkFileName renders a fork chain's persisted filename.
func ForkFileName(forkpoint uint32, prevHash, firstHash chainhash.Hash) string {
	return fmt.Sprintf("fork2_%d_%s_%s",
		forkpoint,
		strings.TrimLeft(prevHash.String(), "0"),
		strings.TrimLeft(firstHash.String(), "0"))
}

// ParseForkFileName parses a fork2_* basename back into its forkpoint and
// (left-zero-padded) prev/first hashes.
func ParseForkFileName(name string) (forkpoint uint32, prevHash, firstHash chainhash.Hash, err error) {
	parts := strings.SplitN(name, "_", 4)
	if len(parts) != 4 || parts[0] != "fork2" {
		return 0, chainhash.Hash{}, chainhash.Hash{}, fmt.Errorf("headerfs: malformed fork filename %q", name)
	}
	fp, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, chainhash.Hash{}, chainhash.Hash{}, fmt.Errorf("headerfs: malformed forkpoint in %q: %w", name, err)
	}
	prev, err := chainhash.NewHashFromStr(parts[2])
	if err != nil {
		return 0, chainhash.Hash{}, chainhash.Hash{}, fmt.Errorf("headerfs: malformed prev hash in %q: %w", name, err)
	}
	first, err := chainhash.NewHashFromStr(parts[3])
	if err != nil {
		return 0, chainhash.Hash{}, chainhash.Hash{}, fmt.Errorf("headerfs: malformed first hash in %q: %w", name, err)
	}
	return uint32(fp), *prev, *first, nil
}

// Path returns the chain's backing file path: blockchain_headers for the
// main chain, forks/fork2_* for everything else.
func (c *Chain) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pathLocked()
}

func (c *Chain) pathLocked() string {
	if c.Parent == nil {
		return c.mainPath()
	}
	return filepath.Join(c.dir, forksDirName, ForkFileName(c.Forkpoint, c.PrevHash, c.ForkpointHash))
}

// Size returns the cached record count.
func (c *Chain) Size() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Height returns the height of the chain's tip, or Forkpoint-1 (as an int64,
// so an empty fork chain can report a height below its forkpoint without
// wrapping) when the chain has no records of its own yet.
func (c *Chain) Height() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(c.Forkpoint) + int64(c.size) - 1
}

func (c *Chain) updateSize() {
	fi, err := os.Stat(c.pathLocked())
	if err != nil {
		c.size = 0
		return
	}
	c.size = uint32(fi.Size() / RecordSize)
}

// ReadHeader returns the decoded header at height, or (nil, nil) if the
// slot exists but is the all-zero empty sentinel, or a *MissingHeaderError
// if height is out of range. Heights below the chain's forkpoint delegate
// to Parent transparently.
func (c *Chain) ReadHeader(height uint32) (*wire.BlockHeader, error) {
	c.mu.Lock()
	parent := c.Parent
	forkpoint := c.Forkpoint
	params := c.params
	c.mu.Unlock()

	if height < forkpoint {
		if parent == nil {
			return nil, &MissingHeaderError{Height: height}
		}
		return parent.ReadHeader(height)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if int64(height) > int64(forkpoint)+int64(c.size)-1 {
		return nil, &MissingHeaderError{Height: height}
	}

	buf, err := c.readRecordLocked(height - forkpoint)
	if err != nil {
		return nil, err
	}
	if isZeroRecord(buf) {
		return nil, nil
	}
	return decodeRecord(buf, height, params)
}

// HeaderAt implements retarget.AncestorReader, letting the retarget engines
// read ancestors without depending on this package directly.
func (c *Chain) HeaderAt(height uint32) (*wire.BlockHeader, error) {
	h, err := c.ReadHeader(height)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, &MissingHeaderError{Height: height}
	}
	return h, nil
}

func (c *Chain) readRecordLocked(delta uint32) ([]byte, error) {
	f, err := os.Open(c.pathLocked())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, RecordSize)
	n, err := f.ReadAt(buf, int64(delta)*RecordSize)
	if err != nil && n < RecordSize {
		return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	return buf, nil
}

// CheckHash reports whether the hash of the header at height equals want.
func (c *Chain) CheckHash(height uint32, want chainhash.Hash) bool {
	h, err := c.ReadHeader(height)
	if err != nil || h == nil {
		return false
	}
	got, err := h.BlockHash()
	if err != nil {
		return false
	}
	return got.IsEqual(&want)
}

// Write seeks to offset, optionally truncates the file there first, writes
// data, then flushes and fsyncs before returning. Size is
// refreshed afterward.
func (c *Chain) Write(data []byte, offset int64, truncate bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(data, offset, truncate)
}

func (c *Chain) writeLocked(data []byte, offset int64, truncate bool) error {
	path := c.pathLocked()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("headerfs: backing file unavailable: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if truncate && offset != int64(c.size)*RecordSize {
		if err := f.Truncate(offset); err != nil {
			return err
		}
	}
	if _, err := f.WriteAt(data, offset); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	c.updateSize()
	return nil
}

// SaveHeader appends a single header, asserting it lands exactly at the
// chain's current tip+1.
func (c *Chain) SaveHeader(h *wire.BlockHeader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delta := h.Height - c.Forkpoint
	if delta != c.size {
		return fmt.Errorf("headerfs: header height %d is not the next record (forkpoint %d size %d)", h.Height, c.Forkpoint, c.size)
	}
	data, err := encodeRecord(h)
	if err != nil {
		return err
	}
	return c.writeLocked(data, int64(delta)*RecordSize, true)
}

// SaveChunk normalises a mixed-length wire chunk into consecutive
// RecordSize records and writes them starting at startHeight. Within the checkpoint region the main chain is the exclusive
// writer; a fork chain asked to save a chunk that starts inside the
// checkpoint region hands the whole chunk to mainChain.
func (c *Chain) SaveChunk(startHeight uint32, chunk []byte, mainChain *Chain) error {
	c.mu.Lock()
	inCheckpointRegion := startHeight <= c.params.MaxCheckpointHeight()
	isFork := c.Parent != nil
	forkpoint := c.Forkpoint
	params := c.params
	c.mu.Unlock()

	if inCheckpointRegion && isFork {
		return mainChain.SaveChunk(startHeight, chunk, mainChain)
	}

	_, raws, err := SplitChunk(chunk, startHeight, params)
	if err != nil {
		return err
	}

	deltaHeight := int64(startHeight) - int64(forkpoint)
	deltaBytes := deltaHeight * RecordSize
	if deltaBytes < 0 {
		// Our forkpoint falls inside this chunk: only the part from our
		// forkpoint onward is ours to write; the parent already owns the
		// rest.
		skipRecords := -deltaHeight
		if skipRecords > int64(len(raws)) {
			skipRecords = int64(len(raws))
		}
		raws = raws[skipRecords:]
		deltaBytes = 0
	}

	out := make([]byte, 0, len(raws)*RecordSize)
	h := startHeight
	for _, raw := range raws {
		rec, err := padToRecord(raw)
		if err != nil {
			return fmt.Errorf("headerfs: encoding record at height %d: %w", h, err)
		}
		out = append(out, rec...)
		h++
	}

	truncate := !inCheckpointRegion
	return c.Write(out, deltaBytes, truncate)
}

// ReadFull reads this chain's entire backing file, used by the reorg swap
// to pick up a child's whole file before exchanging contents
// with its parent.
func (c *Chain) ReadFull() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.ReadFile(c.pathLocked())
}

// ReadSegment reads count records starting at absolute height startHeight
// directly from this chain's own backing file — no parent delegation, since
// swap needs the raw bytes a chain physically owns, not the logical view
// ReadHeader provides.
func (c *Chain) ReadSegment(startHeight uint32, count uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if startHeight < c.Forkpoint {
		return nil, fmt.Errorf("headerfs: height %d is below forkpoint %d", startHeight, c.Forkpoint)
	}
	f, err := os.Open(c.pathLocked())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	offset := int64(startHeight-c.Forkpoint) * RecordSize
	buf := make([]byte, int64(count)*RecordSize)
	n, err := f.ReadAt(buf, offset)
	if err != nil && n < len(buf) {
		return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	return buf, nil
}

// Relabel atomically swaps this chain's identity fields under its own lock.
// Used by chainmgr's reorg swap after the backing files of a child
// and its parent have had their contents exchanged: the
// Chain instances keep "containing" the same logical headers, but which
// file and which id they answer to changes.
func (c *Chain) Relabel(forkpoint uint32, forkpointHash, prevHash chainhash.Hash, parent *Chain) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Forkpoint = forkpoint
	c.ForkpointHash = forkpointHash
	c.PrevHash = prevHash
	c.Parent = parent
	c.updateSize()
}

// RenameFileFrom moves the file currently at oldPath to this chain's
// current (post-Relabel) path.
func (c *Chain) RenameFileFrom(oldPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	newPath := c.pathLocked()
	if oldPath == newPath {
		return nil
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return err
	}
	c.updateSize()
	return nil
}

// CreateEmptyFile truncates (or creates) this chain's backing file to zero
// length — used by fork() to start a brand-new fork chain's file before its
// first SaveHeader call.
func (c *Chain) CreateEmptyFile() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := os.Create(c.pathLocked())
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	c.updateSize()
	return nil
}

// DeleteFile removes this chain's backing file — used when start-up
// consistency checks or swap bookkeeping determine a chain's data can't be
// trusted.
func (c *Chain) DeleteFile() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := os.Remove(c.pathLocked())
	c.size = 0
	return err
}

func padToRecord(raw []byte) ([]byte, error) {
	switch len(raw) {
	case RecordSize:
		return raw, nil
	case wire.LegacyLen:
		out := make([]byte, RecordSize)
		copy(out, raw)
		return out, nil
	default:
		return nil, fmt.Errorf("headerfs: invalid wire header length %d", len(raw))
	}
}
