package main

import (
	"fmt"
	"log"
	"os"

	"github.com/dropDatabas3/hellojohn/internal/security/secretbox"
)

// Herramienta de soporte: sella o dessella un valor con la LINKJOHN_MASTER_KEY
// del entorno, en el mismo formato que la columna refresh_token.
func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: go run sealbox.go seal|unseal <value>")
	}

	value := os.Args[2]
	switch os.Args[1] {
	case "seal":
		sealed, err := secretbox.Encrypt(value)
		if err != nil {
			log.Fatalf("seal: %v", err)
		}
		fmt.Println(sealed)
	case "unseal":
		plain, err := secretbox.Decrypt(value)
		if err != nil {
			log.Fatalf("unseal: %v", err)
		}
		fmt.Println(plain)
	default:
		log.Fatal("Usage: go run sealbox.go seal|unseal <value>")
	}
}
