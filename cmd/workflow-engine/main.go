// Command workflow-engine runs the workflow execution engine: `serve`
// hosts the HTTP/SSE surface, `worker` consumes the execution queue, and
// the root command runs both in one process for single-node deployments.
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
