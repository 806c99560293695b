// Command keygen prints a fresh credential encryption key for the
// COPYTRADER_ENCRYPTION_KEY environment variable.
package main

import (
	"fmt"
	"os"

	"copytrader/internal/secure"
)

func main() {
	key, err := secure.GenerateKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to generate key:", err)
		os.Exit(1)
	}
	fmt.Println(key)
}
