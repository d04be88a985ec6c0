package config

import (
	"flag"
	"fmt"
	"os"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	DataDir string
	Config  string
	Store   string
	Digest  string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args (subcommand and its flags)
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetLogJSON bool
}

// ParseFlags parses the global command-line flags. Parsing stops at the
// first positional argument, which is the subcommand; everything from
// there on is handed back in Args.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("dtkchain", flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")
	fs.StringVar(&f.Store, "store", "", "Storage backend (memory or badger)")
	fs.StringVar(&f.Digest, "digest", "", "Digest scheme (rolling or blake3)")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	// Custom usage
	fs.Usage = func() {
		PrintUsage()
	}

	// Parse
	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()

	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.Store != "" {
		cfg.Store = f.Store
	}
	if f.Digest != "" {
		cfg.Digest = f.Digest
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintUsage prints the command-line usage text.
func PrintUsage() {
	usage := `DTK Chain - token ledger on an append-only block chain

Usage:
  dtkchain [options] <command> [command options]
  dtkchain --help

Commands:
  demo       Run the demo scenario and print the resulting chain
  stats      Show chain statistics
  blocks     List the latest blocks (-n <count>)
  block      Show one block (-index <n>)
  balance    Show an account balance (-account <name>)
  export     Write a full chain snapshot to a JSON file (-out <path>)
  verify     Recompute every block digest and check the linkage

Core Options:
  --datadir       Data directory (default: ~/.dtkchain)
  --config, -c    Config file path (default: <datadir>/dtkchain.conf)
  --store         Storage backend: badger (default) or memory
  --digest        Digest scheme: rolling (default) or blake3

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stderr)
  --log-json      Output logs as JSON

Examples:
  # Run the demo scenario against a fresh in-memory chain
  dtkchain --store=memory demo

  # Inspect the persisted chain
  dtkchain stats
  dtkchain blocks -n 5
  dtkchain block -index 2
  dtkchain balance -account Alice

  # Check chain integrity
  dtkchain verify

Note:
  Chain rules (chain ID, token, allocations) are fixed in the genesis
  configuration. The digest scheme must match the one the archive was
  sealed with, or verification will fail. Data directories are created
  automatically on first start.
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
//  1. Default values
//  2. Auto-create data dirs + default config (idempotent)
//  3. Config file
//  4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	// Handle help/version
	if flags.Help {
		PrintUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("dtkchain version 0.1.0")
		os.Exit(0)
	}

	// Start with defaults
	cfg := DefaultConfig()

	// Override datadir if specified
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Auto-create data directories and default config on first start.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	// Determine config file path
	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	// Load config file
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}

	// Apply file config
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}
