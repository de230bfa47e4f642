// Package main generates (or imports) an account keypair and prints it
// encrypted under WALLET_SECRET, ready for account.encrypted_key.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"solana-trade-engine/internal/wallet"
)

func main() {
	accountID := flag.String("account", "", "Account ID the key is bound to (required)")
	importKey := flag.Bool("import", false, "Read a base58 secret key from WALLET_IMPORT_KEY instead of generating one")
	flag.Parse()

	_ = godotenv.Load()

	if *accountID == "" {
		fmt.Fprintln(os.Stderr, "error: -account is required")
		os.Exit(1)
	}
	keys, err := wallet.NewKeyStore(os.Getenv("WALLET_SECRET"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var kp *wallet.Keypair
	if *importKey {
		kp, err = wallet.KeypairFromBase58(os.Getenv("WALLET_IMPORT_KEY"))
	} else {
		kp, err = wallet.NewKeypair()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	enc, err := keys.EncryptKey(*accountID, kp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("account:       %s\n", *accountID)
	fmt.Printf("public key:    %s\n", kp.PublicKey())
	fmt.Printf("encrypted key: %s\n", enc)
}
