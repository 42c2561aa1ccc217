// Command exef runs the document-flow engine: HTTP API and scheduler, plus a
// version subcommand.
package main

import (
	"log"

	"github.com/exef-pl/exef/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
