// Package main is the ragent command line entry point.
//
// Usage:
//
//	ragent run [--task "..."] [--topk 3]
//	ragent tools
//	ragent retrieve <query>
//
// Configuration is read from ./ragent.{json,yaml,toml}, ./.env and the
// environment (OPENAI_API_KEY, EMBEDDING_KEY, RAGENT_*).
package main

import (
	"fmt"
	"os"

	"github.com/harun/ragent/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
