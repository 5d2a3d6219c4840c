// Package main is the single-binary entrypoint for sharer.
// One binary runs a peer, a bootstrap server, or talks to a running peer.
package main

import "github.com/tutu-network/sharer/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
