/*
main.go - Application entry point

PURPOSE:
  Starts the restitution engine CLI. The default `serve` command runs the
  HTTP API; the other commands are operator tools against the same
  database.

COMMANDS:
  serve                  Run the HTTP API and the credit sync scheduler
  rates import           Load monthly IPCA/SELIC rates from a CSV file
  ledger balance         Print a user's valid balance and recent entries

CONFIGURATION:
  Defaults, then --config (TOML), then --env-file (.env), then RESTITUTION_*
  environment variables, then --port and --db. See config/config.go.

EXAMPLES:
  # Run with file database
  ./server serve --config=./restitution.toml

  # Run with in-memory database on another port
  ./server serve --db=":memory:" --port=3000

  # Load SELIC rates. A running server picks them up once its cached
  # windows expire ([rates] cache_ttl).
  ./server rates import --index=selic --file=./selic.csv

SEE ALSO:
  - root.go: Global flags and config loading
  - serve.go: Server startup and graceful shutdown
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
