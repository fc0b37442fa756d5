// Command stockctl is the operator CLI for the stock engine: one-shot
// sweeps, identifier issuance and schema migration.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
