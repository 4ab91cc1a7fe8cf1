// podctl is the operational entrypoint for the POD engine: batch jobs for
// fetching and retrying proof-of-delivery documents, the tracking webhook
// server, and quota inspection.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
