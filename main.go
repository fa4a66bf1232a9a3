// Command arowana reads and writes document bases from the command line.
//
// Configuration comes from environment variables, overridden by flags:
//
//	AROWANA_DATA_DIR   --data-dir    data directory (default ./data)
//	AROWANA_BACKEND    --backend     sqlite, json or memory (default sqlite)
//	AROWANA_LOG_LEVEL  --log-level   debug, info, warn or error (default info)
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "arowana: %v\n", err)
		os.Exit(1)
	}
}
