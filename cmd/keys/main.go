package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/hellojohn/internal/security/secretbox"
	"github.com/dropDatabas3/hellojohn/internal/security/session"
)

func main() {
	var (
		flagEnvFile   = flag.String("env-file", ".env", "ruta a .env")
		cmdGenMaster  = flag.Bool("gen-master", false, "genera clave para LINKJOHN_MASTER_KEY (cifrado de refresh tokens)")
		cmdGenSession = flag.Bool("gen-session-secret", false, "genera secreto HS256 para compartir con el host webmail")
		cmdCheck      = flag.Bool("check", false, "verifica las claves configuradas en el entorno")
	)
	flag.Parse()

	if *flagEnvFile != "" {
		_ = godotenv.Load(*flagEnvFile)
	}

	switch {
	case *cmdGenMaster:
		generateKey("LINKJOHN_MASTER_KEY", 32)
	case *cmdGenSession:
		generateKey("LINKJOHN_SESSION_SECRET", 48)
	case *cmdCheck:
		checkKeys()
	default:
		fmt.Println("usage:")
		fmt.Println("  keys -gen-master")
		fmt.Println("  keys -gen-session-secret")
		fmt.Println("  keys -check [-env-file .env]")
	}
}

func generateKey(envName string, size int) {
	key := make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		fmt.Printf("❌ Error generating key: %v\n", err)
		os.Exit(1)
	}

	encoded := base64.StdEncoding.EncodeToString(key)
	fmt.Printf("✅ Generated key: %s\n", encoded)
	fmt.Println("\n💡 Add this to your .env file:")
	fmt.Printf("%s=%s\n", envName, encoded)
}

// checkKeys valida lo que el service validaría al arrancar, sin tocar la DB.
func checkKeys() {
	failed := false

	if secretbox.IsReady() {
		fmt.Println("✅ LINKJOHN_MASTER_KEY: ok (base64 de 32 bytes)")
	} else {
		fmt.Println("❌ LINKJOHN_MASTER_KEY: faltante o inválida")
		failed = true
	}

	if secret := os.Getenv("LINKJOHN_SESSION_SECRET"); secret == "" {
		fmt.Println("❌ LINKJOHN_SESSION_SECRET: faltante")
		failed = true
	} else if err := session.NewVerifier(secret, os.Getenv("LINKJOHN_SESSION_ISSUER")).SelfCheck(); err != nil {
		fmt.Printf("❌ LINKJOHN_SESSION_SECRET: selfcheck falló: %v\n", err)
		failed = true
	} else {
		fmt.Println("✅ LINKJOHN_SESSION_SECRET: ok")
	}

	if failed {
		os.Exit(1)
	}
}
