package pow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/meowcoin-foundation/meowheaders/chainhash"
)

// ErrKernelUnavailable is returned by a Kernel, or by Registry.Hash, when
// the requested algorithm has no real implementation wired in. Validation
// that needs a missing kernel fails loudly; there is never a silent
// fallback to a different hash.
var ErrKernelUnavailable = errors.New("pow: hash kernel unavailable")

// Algorithm names the five PoW kernels the chain's consensus history has
// used.
type Algorithm string

const (
	AlgoX16R    Algorithm = "x16r"
	AlgoX16Rv2  Algorithm = "x16rv2"
	AlgoKawPow  Algorithm = "kawpow"
	AlgoMeowPow Algorithm = "meowpow"
	AlgoScrypt  Algorithm = "scrypt"
)

// Extras carries the algorithm-specific bytes a kernel needs beyond the
// first 80 header bytes: for KawPow/MeowPow this is the 8-byte nonce and
// 32-byte mix hash that live at offsets 80.88 and 88.120 of the extended
// on-disk record.
type Extras struct {
	Nonce64 uint64
	MixHash chainhash.Hash
}

// Kernel is a pure function over header bytes: it must be deterministic and
// side-effect free.
type Kernel interface {
	Algorithm() Algorithm
	Hash(header80 []byte, extra Extras) (chainhash.Hash, error)
}

// Registry holds the set of kernels available to the running process. It is
// populated once at start-up; verify (headerverify) consults it and fails
// loudly for any algorithm the registry doesn't carry a working kernel for.
type Registry struct {
	mu      sync.RWMutex
	kernels map[Algorithm]Kernel
}

// NewRegistry returns a Registry pre-populated with the kernels this module
// implements directly (scrypt), plus stand-in stubs for the externally
// supplied primitives (x16r, x16rv2, kawpow, meowpow) — each stub reports
// itself unavailable until a caller installs a real implementation with
// Register.
func NewRegistry() *Registry {
	r := &Registry{kernels: make(map[Algorithm]Kernel)}
	r.Register(scryptKernel{})
	r.Register(unavailableKernel{AlgoX16R})
	r.Register(unavailableKernel{AlgoX16Rv2})
	r.Register(unavailableKernel{AlgoKawPow})
	r.Register(unavailableKernel{AlgoMeowPow})
	return r
}

// Register installs k, replacing any existing kernel for the same
// algorithm. Used at start-up to plug in a real x16r/x16rv2/KawPow/MeowPow
// implementation from outside this module.
func (r *Registry) Register(k Kernel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kernels[k.Algorithm()] = k
}

// Available reports whether algo has a real (non-stub) kernel registered.
func (r *Registry) Available(algo Algorithm) bool {
	r.mu.RLock()
	k, ok := r.kernels[algo]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	_, isStub := k.(unavailableKernel)
	return !isStub
}

// Hash computes the PoW hash for algo over header80/extra. It returns
// ErrKernelUnavailable, wrapped with the algorithm name, if no kernel (or
// only a stub) is registered.
func (r *Registry) Hash(algo Algorithm, header80 []byte, extra Extras) (chainhash.Hash, error) {
	r.mu.RLock()
	k, ok := r.kernels[algo]
	r.mu.RUnlock()
	if !ok {
		return chainhash.Hash{}, fmt.Errorf("%w: %s", ErrKernelUnavailable, algo)
	}
	return k.Hash(header80, extra)
}

// unavailableKernel is the default stand-in for an externally supplied
// hash primitive. It always fails: a header whose validation needs it is
// rejected with an error rather than validated with the wrong hash.
type unavailableKernel struct {
	algo Algorithm
}

func (u unavailableKernel) Algorithm() Algorithm { return u.algo }

func (u unavailableKernel) Hash(_ []byte, _ Extras) (chainhash.Hash, error) {
	return chainhash.Hash{}, fmt.Errorf("%w: %s", ErrKernelUnavailable, u.algo)
}

// scryptKernel implements Scrypt-1024-1-1 directly since it needs nothing
// beyond the standard library's extended crypto package.
type scryptKernel struct{}

func (scryptKernel) Algorithm() Algorithm { return AlgoScrypt }

func (scryptKernel) Hash(header80 []byte, _ Extras) (chainhash.Hash, error) {
	return chainhash.ScryptPoWHash(header80)
}
