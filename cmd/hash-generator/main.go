// hash-generator produces the bcrypt hashes stored in
// auth.worker_secret_hash and auth.admin_secret_hash. Secrets are read
// from arguments so they never land in shell history via echo pipelines.
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: hash-generator <secret> [<secret>...]")
		os.Exit(1)
	}

	for _, secret := range os.Args[1:] {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error generating hash: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(hash))
	}
}
