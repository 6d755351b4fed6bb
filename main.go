// Command xcp is a high-throughput cp(1) replacement: see cmd/xcp for the
// CLI surface and internal/ for the copy engine.
package main

import (
	"os"

	"github.com/tarka/xcp-sub000/cmd/xcp"
)

func main() {
	os.Exit(xcp.Execute())
}
