package chainmgr

import (
	"fmt"

	"github.com/meowcoin-foundation/meowheaders/headerfs"
	"github.com/meowcoin-foundation/meowheaders/wire"
)

// Fork creates a new fork chain rooted at header off of parent, for the
// case where header connects to an ancestor that is not parent's current
// tip. header must already verify against parent with its height check
// relaxed.
func (m *Manager) Fork(parent *headerfs.Chain, header *wire.BlockHeader) (*headerfs.Chain, error) {
	if !m.canConnectOn(parent, header, false) {
		return nil, fmt.Errorf("chainmgr: forking header does not connect to parent chain")
	}

	forkpointHash, err := header.BlockHash()
	if err != nil {
		return nil, err
	}
	prevHash, err := m.hashAtOn(parent, header.Height-1)
	if err != nil {
		return nil, err
	}

	child := headerfs.NewForkChain(m.dir, m.params, header.Height, forkpointHash, prevHash, parent)
	if err := child.CreateEmptyFile(); err != nil {
		return nil, fmt.Errorf("chainmgr: creating fork file: %w", err)
	}
	if err := child.SaveHeader(header); err != nil {
		return nil, fmt.Errorf("chainmgr: writing fork's first header: %w", err)
	}

	m.registryMu.Lock()
	m.chains[forkpointHash] = child
	m.registryMu.Unlock()

	if err := m.swapWithParent(child); err != nil {
		return nil, err
	}
	return child, nil
}

// swapWithParent repeatedly swaps child with its parent while child is
// stronger, bounded by the registry size.
func (m *Manager) swapWithParent(child *headerfs.Chain) error {
	count := 0
	for {
		oldParent := child.Parent
		swapped, err := m.trySwap(child)
		if err != nil {
			return err
		}
		if !swapped {
			return nil
		}
		count++
		if count > len(m.allChains()) {
			return ErrTooManySwaps
		}
		// child may have become the parent of some of its former
		// siblings.
		for _, sibling := range m.directChildren(oldParent) {
			if sibling == child {
				continue
			}
			if child.CheckHash(sibling.Forkpoint-1, sibling.PrevHash) {
				sibling.Relabel(sibling.Forkpoint, sibling.ForkpointHash, sibling.PrevHash, child)
			}
		}
	}
}

// trySwap performs a single swap if child has become stronger than its
// parent: exchange backing file
// contents so the child takes the parent's filename and identity while the
// parent retains only the records prior to the forkpoint.
func (m *Manager) trySwap(child *headerfs.Chain) (bool, error) {
	parent := child.Parent
	if parent == nil {
		return false, nil
	}

	parentWork, err := m.ChainWork(parent)
	if err != nil {
		return false, err
	}
	childWork, err := m.ChainWork(child)
	if err != nil {
		return false, err
	}
	if parentWork.Cmp(childWork) >= 0 {
		return false, nil
	}

	logger.Infof("chainmgr: swapping %d with parent %d", child.Forkpoint, parent.Forkpoint)

	forkpoint := child.Forkpoint
	if forkpoint <= parent.Forkpoint {
		return false, fmt.Errorf("chainmgr: forkpoint of parent (%d) must be below child's (%d)", parent.Forkpoint, forkpoint)
	}
	parentBranchSize := parent.Height() - int64(forkpoint) + 1
	if parentBranchSize < 1 {
		return false, fmt.Errorf("chainmgr: parent owns no records at forkpoint %d", forkpoint)
	}

	childOldPath := child.Path()
	childData, err := child.ReadFull()
	if err != nil {
		return false, fmt.Errorf("chainmgr: reading child file during swap: %w", err)
	}
	parentData, err := parent.ReadSegment(forkpoint, uint32(parentBranchSize))
	if err != nil {
		return false, fmt.Errorf("chainmgr: reading parent tail during swap: %w", err)
	}

	// Both writes truncate first so neither file retains stale records
	// beyond the data being moved in.
	if err := child.Write(parentData, 0, true); err != nil {
		return false, fmt.Errorf("chainmgr: writing demoted data into child file: %w", err)
	}
	if err := parent.Write(childData, int64(forkpoint-parent.Forkpoint)*headerfs.RecordSize, true); err != nil {
		return false, fmt.Errorf("chainmgr: writing promoted data into parent file: %w", err)
	}

	if len(parentData) < headerfs.RecordSize {
		return false, fmt.Errorf("chainmgr: short record data decoding swap root header")
	}
	newParentFirstHeader, err := headerfs.DecodeSwapRootHeader(parentData[:headerfs.RecordSize], forkpoint, m.params)
	if err != nil {
		return false, fmt.Errorf("chainmgr: decoding demoted chain's new root header: %w", err)
	}
	newParentForkpointHash, err := newParentFirstHeader.BlockHash()
	if err != nil {
		return false, err
	}

	oldChildID := child.ForkpointHash
	oldParentID := parent.ForkpointHash
	oldParentForkpoint, oldParentForkpointHash, oldParentPrevHash, oldParentParent :=
		parent.Forkpoint, parent.ForkpointHash, parent.PrevHash, parent.Parent
	oldChildForkpoint, oldChildPrevHash := child.Forkpoint, child.PrevHash

	child.Relabel(oldParentForkpoint, oldParentForkpointHash, oldParentPrevHash, oldParentParent)
	parent.Relabel(oldChildForkpoint, newParentForkpointHash, oldChildPrevHash, child)

	// The promoted data already sits at the child's new path (it was
	// written into the old parent's file in place); the demoted data is
	// still in the child's old fork file and must move to the parent's
	// new fork2_* name.
	if err := parent.RenameFileFrom(childOldPath); err != nil {
		return false, fmt.Errorf("chainmgr: renaming demoted chain's file: %w", err)
	}

	m.registryMu.Lock()
	delete(m.chains, oldChildID)
	delete(m.chains, oldParentID)
	m.chains[child.ForkpointHash] = child
	m.chains[parent.ForkpointHash] = parent
	if child.Parent == nil {
		m.main = child
	}
	m.registryMu.Unlock()

	return true, nil
}
