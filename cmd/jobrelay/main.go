// Command jobrelay consumes queued job messages and runs the webhooks their job
// definitions describe. It also enqueues messages, inspects job configuration and
// maintains the MySQL queue table.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
