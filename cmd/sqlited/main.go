// Command sqlited is a thin bootstrap around the engine/stmt/handler
// packages: it owns the listen socket and the SQLite database handle, and
// hands every accepted connection one handler.Handler for the life of
// that connection. The wire protocol itself is entirely implemented by
// the handler/stmt/wire/schema packages; this command exists only to
// give them a real caller.
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
