// Package chainmgr implements the chain manager and the query surface
// built on top of it: a registry of chains, chunk ingestion, fork creation,
// reorg via file/metadata swap, and consistency checks at start-up.
package chainmgr

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/meowcoin-foundation/meowheaders/chaincfg"
	"github.com/meowcoin-foundation/meowheaders/chainhash"
	"github.com/meowcoin-foundation/meowheaders/headerfs"
	"github.com/meowcoin-foundation/meowheaders/log"
	"github.com/meowcoin-foundation/meowheaders/pow"
)

var logger = log.Disabled

// UseLogger installs l as the package-level logger.
func UseLogger(l log.Logger) { logger = l }

// Manager is the chain manager: registry, startup recovery,
// chunk ingestion, fork creation, and reorg, plus the query surface
// layered directly on top.
//
// Lock order: a per-chain mutex (internal to headerfs.Chain) is always
// acquired before registryMu; trySwap touches both in that order for the
// duration of a swap.
type Manager struct {
	dir     string
	params  *chaincfg.Params
	kernels *pow.Registry

	registryMu sync.Mutex
	chains     map[chainhash.Hash]*headerfs.Chain
	main       *headerfs.Chain

	work    *workCache
	dirLock *headerfs.DirLock
}

// New opens (or initializes) the header store at dir under params, runs
// start-up recovery, and returns a ready Manager. The directory is held
// under an advisory lock for the Manager's lifetime so two processes can't
// corrupt the same store.
func New(dir string, params *chaincfg.Params, kernels *pow.Registry) (*Manager, error) {
	dirLock, err := headerfs.AcquireDirLock(dir)
	if err != nil {
		return nil, fmt.Errorf("chainmgr: locking headers directory: %w", err)
	}

	main, err := headerfs.NewMainChain(dir, params)
	if err != nil {
		dirLock.Release()
		return nil, fmt.Errorf("chainmgr: opening main chain: %w", err)
	}

	work, err := newWorkCache(dir)
	if err != nil {
		dirLock.Release()
		return nil, fmt.Errorf("chainmgr: opening chain-work cache: %w", err)
	}
	work.seedGenesis(params.Genesis, params.GenesisBits)

	m := &Manager{
		dir:     dir,
		params:  params,
		kernels: kernels,
		chains:  map[chainhash.Hash]*headerfs.Chain{params.Genesis: main},
		main:    main,
		work:    work,
		dirLock: dirLock,
	}

	if err := m.recoverMainChain(); err != nil {
		return nil, err
	}
	if err := m.recoverForks(); err != nil {
		return nil, err
	}
	return m, nil
}

// Close releases resources the manager holds open: the durable tier of the
// chain-work cache and the headers-directory lock.
func (m *Manager) Close() error {
	err := m.work.close()
	m.dirLock.Release()
	return err
}

// recoverMainChain is the start-up sanity check: if the main chain extends
// past the checkpoint horizon but the header right after the last
// checkpoint doesn't connect, the file is untrustworthy — delete it and
// start empty.
func (m *Manager) recoverMainChain() error {
	maxCP := m.params.MaxCheckpointHeight()
	if m.main.Height() <= int64(maxCP) {
		return nil
	}
	header, err := m.main.ReadHeader(maxCP + 1)
	if err != nil || header == nil || !m.canConnectOn(m.main, header, false) {
		logger.Infof("chainmgr: deleting main chain, cannot connect header after last checkpoint")
		if err := m.main.DeleteFile(); err != nil {
			return fmt.Errorf("chainmgr: deleting inconsistent main chain: %w", err)
		}
		newMain, err := headerfs.NewMainChain(m.dir, m.params)
		if err != nil {
			return err
		}
		m.main = newMain
		m.chains[m.params.Genesis] = newMain
	}
	return nil
}

// recoverForks enumerates forks/fork2_* files, instantiating each whose
// parent chain and first-record hash are found consistent, and deleting
// everything else.
func (m *Manager) recoverForks() error {
	forksDir := filepath.Join(m.dir, "forks")
	entries, err := os.ReadDir(forksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	type candidate struct {
		name      string
		forkpoint uint32
	}
	var names []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "fork2_") {
			continue
		}
		forkpoint, _, _, err := headerfs.ParseForkFileName(e.Name())
		if err != nil {
			continue
		}
		names = append(names, candidate{name: e.Name(), forkpoint: forkpoint})
	}
	sort.Slice(names, func(i, j int) bool { return names[i].forkpoint < names[j].forkpoint })

	for _, c := range names {
		m.instantiateFork(forksDir, c.name)
	}
	return nil
}

func (m *Manager) instantiateFork(forksDir, name string) {
	path := filepath.Join(forksDir, name)
	deleteChain := func(reason string) {
		logger.Infof("chainmgr: deleting fork %s: %s", name, reason)
		_ = os.Remove(path)
	}

	forkpoint, prevHash, firstHash, err := headerfs.ParseForkFileName(name)
	if err != nil {
		deleteChain(err.Error())
		return
	}
	if forkpoint <= m.params.MaxCheckpointHeight() {
		deleteChain("fork below max checkpoint")
		return
	}

	var parent *headerfs.Chain
	for _, candidate := range m.chains {
		if candidate.CheckHash(forkpoint-1, prevHash) {
			parent = candidate
			break
		}
	}
	if parent == nil {
		deleteChain("cannot find parent for chain")
		return
	}

	chain := headerfs.NewForkChain(m.dir, m.params, forkpoint, firstHash, prevHash, parent)
	header, err := chain.ReadHeader(forkpoint)
	if err != nil || header == nil {
		deleteChain("cannot read first header")
		return
	}
	gotHash, err := header.BlockHash()
	if err != nil || !gotHash.IsEqual(&firstHash) {
		deleteChain("incorrect first hash for chain")
		return
	}
	if !m.canConnectOn(parent, header, false) {
		deleteChain("cannot connect chain to parent")
		return
	}

	m.registryMu.Lock()
	m.chains[firstHash] = chain
	m.registryMu.Unlock()
}

// GetBestChain returns the chain rooted at genesis.
func (m *Manager) GetBestChain() *headerfs.Chain {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	return m.main
}

// LookupChain returns the registered chain whose id (its forkpoint hash)
// matches, or ErrChainNotFound. Ids move when chains swap identities
// during a reorg, so callers should not hold them across ConnectChunk
// calls.
func (m *Manager) LookupChain(id chainhash.Hash) (*headerfs.Chain, error) {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	c, ok := m.chains[id]
	if !ok {
		return nil, ErrChainNotFound
	}
	return c, nil
}

// allChains returns a snapshot slice of every registered chain.
func (m *Manager) allChains() []*headerfs.Chain {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	out := make([]*headerfs.Chain, 0, len(m.chains))
	for _, c := range m.chains {
		out = append(out, c)
	}
	return out
}

// directChildren returns every registered chain whose Parent is exactly
// parent.
func (m *Manager) directChildren(parent *headerfs.Chain) []*headerfs.Chain {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	var out []*headerfs.Chain
	for _, c := range m.chains {
		if c.Parent == parent {
			out = append(out, c)
		}
	}
	return out
}
