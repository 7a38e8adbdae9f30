// Command confdb runs a ConfDB acceptor node or acts as a get/put client
// against a cluster of them, per SPEC_FULL.md §6.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
