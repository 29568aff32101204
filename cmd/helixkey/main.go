// Command helixkey seals an oracle signer key for use with the
// oracle.encrypted_key_path setting. The key and password are read from the
// environment so they never appear in shell history.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/helixlabs/helixmarket/internal/crypto"
)

func main() {
	out := flag.String("out", "signer.key.json", "output path for the encrypted key file")
	flag.Parse()

	key := os.Getenv("HELIX_SIGNER_KEY")
	password := os.Getenv("HELIX_KEY_PASSWORD")
	if key == "" || password == "" {
		fmt.Fprintln(os.Stderr, "helixkey: HELIX_SIGNER_KEY and HELIX_KEY_PASSWORD must be set")
		os.Exit(1)
	}

	blob, err := crypto.EncryptKey(key, password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "helixkey: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "helixkey: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("encrypted key written to %s\n", *out)
}
