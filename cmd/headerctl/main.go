// Command headerctl is a thin harness around chainmgr.Manager: point it
// at a headers directory and a network, feed it chunk files, and query
// the store.
package main

import (
	"fmt"
	"os"
	"strconv"

	flags "github.com/jessevdk/go-flags"

	"github.com/meowcoin-foundation/meowheaders/chainmgr"
	"github.com/meowcoin-foundation/meowheaders/pow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "headerctl:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, args, err := loadConfig()
	if err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			return nil
		}
		return err
	}
	if err := initLogRotator(cfg.LogFile, cfg.Debug); err != nil {
		return fmt.Errorf("initializing log rotator: %w", err)
	}
	if logRotator != nil {
		defer logRotator.Close()
	}

	if len(args) < 1 {
		return fmt.Errorf("usage: headerctl [options] <tip|connect|hash-at> [args...]")
	}

	params, err := paramsForNetwork(cfg.Network)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.HeadersDir, 0o755); err != nil {
		return fmt.Errorf("creating headers directory: %w", err)
	}

	kernels := pow.NewRegistry()
	mgr, err := chainmgr.New(cfg.HeadersDir, params, kernels)
	if err != nil {
		return fmt.Errorf("opening header store: %w", err)
	}
	defer mgr.Close()

	switch args[0] {
	case "tip":
		return cmdTip(mgr)
	case "connect":
		if len(args) != 3 {
			return fmt.Errorf("usage: headerctl connect <chunk-file> <start-height>")
		}
		return cmdConnect(mgr, args[1], args[2])
	case "hash-at":
		if len(args) != 2 {
			return fmt.Errorf("usage: headerctl hash-at <height>")
		}
		return cmdHashAt(mgr, args[1])
	default:
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func cmdTip(mgr *chainmgr.Manager) error {
	height := mgr.Height()
	if height < 0 {
		fmt.Println("empty")
		return nil
	}
	hash, err := mgr.Tip()
	if err != nil {
		return err
	}
	stale, err := mgr.IsTipStale()
	if err != nil {
		return err
	}
	fmt.Printf("height=%d hash=%s stale=%v\n", height, hash, stale)
	return nil
}

func cmdConnect(mgr *chainmgr.Manager, chunkPath, startHeightStr string) error {
	startHeight, err := strconv.ParseUint(startHeightStr, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid start height: %w", err)
	}
	data, err := os.ReadFile(chunkPath)
	if err != nil {
		return fmt.Errorf("reading chunk file: %w", err)
	}

	best := mgr.GetBestChain()
	extended, err := mgr.ConnectChunk(best, uint32(startHeight), data)
	if err != nil {
		return fmt.Errorf("connecting chunk: %w", err)
	}
	fmt.Printf("connected %d bytes at height %d, extended_to_tip=%v\n", len(data), startHeight, extended)
	return nil
}

func cmdHashAt(mgr *chainmgr.Manager, heightStr string) error {
	height, err := strconv.ParseUint(heightStr, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid height: %w", err)
	}
	hash, err := mgr.HashAt(uint32(height))
	if err != nil {
		return err
	}
	fmt.Println(hash.String())
	return nil
}
