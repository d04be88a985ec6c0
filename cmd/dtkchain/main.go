// dtkchain runs a single-node DTK chain: submit token transactions, seal
// them into blocks, inspect the archive and verify its integrity.
//
// Usage:
//
//	dtkchain [options] demo      Run the demo scenario
//	dtkchain [options] stats     Show chain statistics
//	dtkchain --help              Show help
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dtklabs/dtkchain/config"
	"github.com/dtklabs/dtkchain/internal/explorer"
	"github.com/dtklabs/dtkchain/internal/node"
	"github.com/dtklabs/dtkchain/pkg/types"
)

func main() {
	cfg, flags, err := config.Load()
	if err != nil {
		fatal("%v", err)
	}

	if len(flags.Args) == 0 {
		config.PrintUsage()
		os.Exit(1)
	}
	cmd := flags.Args[0]
	cmdArgs := flags.Args[1:]

	if cmd == "help" {
		config.PrintUsage()
		return
	}

	n, err := node.New(cfg)
	if err != nil {
		fatal("%v", err)
	}

	var cmdErr error
	switch cmd {
	case "demo":
		cmdErr = cmdDemo(n)
	case "stats":
		cmdErr = cmdStats(n)
	case "blocks":
		cmdErr = cmdBlocks(n, cmdArgs)
	case "block":
		cmdErr = cmdBlock(n, cmdArgs)
	case "balance":
		cmdErr = cmdBalance(n, cmdArgs)
	case "export":
		cmdErr = cmdExport(n, cmdArgs)
	case "verify":
		cmdErr = cmdVerify(n)
	default:
		n.Close()
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		config.PrintUsage()
		os.Exit(1)
	}

	n.Close()
	if cmdErr != nil {
		fatal("%v", cmdErr)
	}
}

// ── demo ────────────────────────────────────────────────────────────

// cmdDemo runs the reference scenario: fund accounts from the genesis
// allocation, spend an allowance down to zero, seal two blocks and verify
// the result.
func cmdDemo(n *node.Node) error {
	if n.Height() != 0 {
		return errors.New("demo needs a fresh chain; use --store=memory or a new --datadir")
	}

	gen := n.Genesis()
	fmt.Printf("=== %s ===\n\n", gen.ChainName)
	fmt.Printf("Token:  %s (%s), %d decimals\n", gen.Token.Name, gen.Token.Symbol, gen.Token.Decimals)
	fmt.Println("Genesis allocation:")
	for _, b := range n.Balances() {
		fmt.Printf("  %-10s %d\n", b.Account, b.Balance)
	}

	fmt.Println("\n-- Transactions --")
	if _, err := n.Transfer("0x0", "Alice", 500); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	fmt.Println("transfer      0x0   -> Alice    500")

	if _, err := n.Approve("Alice", "Bob", 200); err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	fmt.Println("approve       Alice -> Bob      200")

	if _, err := n.TransferFrom("Alice", "Bob", "Charlie", 200); err != nil {
		return fmt.Errorf("transferFrom: %w", err)
	}
	fmt.Println("transferFrom  Alice -> Charlie  200  (by Bob)")

	// The allowance is spent; one more token must be refused.
	if _, err := n.TransferFrom("Alice", "Bob", "Charlie", 1); err != nil {
		fmt.Printf("transferFrom  Alice -> Charlie  1    rejected: %v\n", err)
	} else {
		return errors.New("over-allowance transferFrom was accepted")
	}

	blk, err := n.Commit()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	fmt.Printf("\nBlock %d sealed with %d transactions\n", blk.Index, len(blk.Transactions))

	if _, err := n.Transfer("0x0", "Dave", 8); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	if _, err := n.Transfer("0x0", "Eve", 15); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	blk, err = n.Commit()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	fmt.Printf("Block %d sealed with %d transactions\n", blk.Index, len(blk.Transactions))

	fmt.Println("\n-- Latest blocks --")
	for _, view := range n.LatestBlocks(3) {
		printBlock(view)
		fmt.Println()
	}

	fmt.Println("-- Balances --")
	for _, b := range n.Balances() {
		fmt.Printf("  %-10s %d\n", b.Account, b.Balance)
	}

	fmt.Println("\n-- Stats --")
	printStats(n)

	res := n.Verify()
	fmt.Printf("\nChain valid: %v\n", res.OK())
	if !res.OK() {
		return errors.New(res.String())
	}
	return nil
}

// ── stats ───────────────────────────────────────────────────────────

func cmdStats(n *node.Node) error {
	printStats(n)
	return nil
}

func printStats(n *node.Node) {
	stats := n.Stats()
	gen := n.Genesis()

	fmt.Printf("Chain:        %s\n", gen.ChainID)
	fmt.Printf("Token:        %s (%s)\n", gen.Token.Name, gen.Token.Symbol)
	fmt.Printf("Blocks:       %d\n", stats.TotalBlocks)
	fmt.Printf("Transactions: %d\n", stats.TotalTransactions)
	fmt.Printf("Tip index:    %d\n", stats.TipIndex)
	if stats.TipDigest != "" {
		fmt.Printf("Tip digest:   %s\n", stats.TipDigest)
	}
	fmt.Printf("Tip age:      %ds\n", stats.AgeSeconds)
	fmt.Printf("Supply:       %d\n", n.TotalSupply())
	fmt.Printf("Pending:      %d\n", n.PendingCount())
}

// ── blocks ──────────────────────────────────────────────────────────

func cmdBlocks(n *node.Node, args []string) error {
	fs := flag.NewFlagSet("blocks", flag.ExitOnError)
	count := fs.Int("n", 3, "number of blocks to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	for _, view := range n.LatestBlocks(*count) {
		printBlock(view)
		fmt.Println()
	}
	return nil
}

// ── block ───────────────────────────────────────────────────────────

func cmdBlock(n *node.Node, args []string) error {
	fs := flag.NewFlagSet("block", flag.ExitOnError)
	index := fs.Uint64("index", 0, "block index to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !flagWasSet(fs, "index") {
		return errors.New("usage: dtkchain block -index <n>")
	}

	view, err := n.BlockByIndex(*index)
	if err != nil {
		return err
	}
	printBlock(view)
	return nil
}

func printBlock(view explorer.BlockView) {
	fmt.Printf("Block #%d\n", view.Index)
	fmt.Printf("  Digest:    %s\n", view.Digest)
	fmt.Printf("  Prev:      %s\n", view.PrevDigest)
	ts := time.Unix(view.Timestamp, 0).UTC()
	fmt.Printf("  Timestamp: %s\n", ts.Format("2006-01-02 15:04:05 UTC"))
	fmt.Printf("  Transactions (%d):\n", view.TransactionCount)
	for i, t := range view.Transactions {
		switch t.Kind {
		case "approve":
			fmt.Printf("    [%d] %s approves %s: %d\n", i, t.Sender, t.Receiver, t.Amount)
		case "transferFrom":
			fmt.Printf("    [%d] %s -> %s: %d (by %s)\n", i, t.Sender, t.Receiver, t.Amount, t.Spender)
		default:
			fmt.Printf("    [%d] %s -> %s: %d\n", i, t.Sender, t.Receiver, t.Amount)
		}
	}
}

// ── balance ─────────────────────────────────────────────────────────

func cmdBalance(n *node.Node, args []string) error {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	account := fs.String("account", "", "account name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *account == "" {
		return errors.New("usage: dtkchain balance -account <name>")
	}

	fmt.Printf("%s: %d\n", *account, n.BalanceOf(types.Account(*account)))
	return nil
}

// ── export ──────────────────────────────────────────────────────────

func cmdExport(n *node.Node, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "dtkchain_export.json", "output file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := n.Export(*out); err != nil {
		return err
	}
	fmt.Printf("Exported %d blocks to %s\n", len(n.Blocks()), *out)
	return nil
}

// ── verify ──────────────────────────────────────────────────────────

func cmdVerify(n *node.Node) error {
	res := n.Verify()
	fmt.Printf("Blocks scanned: %d\n", len(n.Blocks()))
	fmt.Printf("Chain valid:    %v\n", res.OK())
	if !res.OK() {
		fmt.Printf("  %s\n", res)
		return errors.New("chain verification failed")
	}
	return nil
}

// flagWasSet reports whether a flag was explicitly passed.
func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
