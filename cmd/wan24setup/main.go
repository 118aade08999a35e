// Command wan24setup is the signed installer package toolchain: createKey,
// printKsr, and signKey manage the two-tier PKI; create and extract build
// and unpack package archives; install drives the extract-configure-run
// handoff to a registered setup plugin.
package main

import (
	"os"

	"wan24setup/internal/cli"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
