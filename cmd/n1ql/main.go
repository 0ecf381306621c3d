// Command n1ql compiles builder scenarios to N1QL and runs them against
// Couchbase or a local badger store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/n1qlorm/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
