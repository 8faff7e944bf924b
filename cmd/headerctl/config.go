package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"github.com/meowcoin-foundation/meowheaders/chaincfg"
)

var defaultHeadersDir = filepath.Join(".", "headers")

// config defines the command-line options headerctl accepts: one struct,
// go-flags tags, no config file (this tool is a thin harness, not a
// long-running daemon).
type config struct {
	HeadersDir string `short:"H" long:"headersdir" description:"Directory holding the header store" default:"."`
	Network    string `short:"N" long:"network" description:"Network parameters to use" choice:"mainnet" choice:"testnet" default:"mainnet"`
	LogFile    string `short:"L" long:"logfile" description:"Path to a rotated log file; empty disables file logging"`
	Debug      string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}" default:"info"`
}

func loadConfig() (*config, []string, error) {
	cfg := config{HeadersDir: defaultHeadersDir, Network: "mainnet", Debug: "info"}

	parser := flags.NewParser(&cfg, flags.Default)
	remaining, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, "headerctl: failed to parse options:", err)
		}
		return nil, nil, err
	}
	return &cfg, remaining, nil
}

func paramsForNetwork(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNetParams, nil
	default:
		return nil, fmt.Errorf("headerctl: unknown network %q", name)
	}
}
