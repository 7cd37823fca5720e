// Command sigil runs the token ledger as an HTTP service and provides
// operator tooling around tier tables and token derivation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitSuccess = 0
	exitError   = 1
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sigil",
		Short:         "Tiered one-time token ledger",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newTiersCmd(),
		newDeriveCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sigil: %v\n", err)
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}
