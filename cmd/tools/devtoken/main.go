// Command devtoken mints an HS256 bearer token for local testing of the
// protected and admin routes.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "Signing secret (defaults to JWT_SECRET)")
	sub := flag.String("sub", "demo-user", "Account id placed in the sub claim")
	role := flag.String("role", "", "Role claim, e.g. admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintf(os.Stderr, "Error: secret not provided and JWT_SECRET not set\n")
		os.Exit(1)
	}

	claims := jwt.MapClaims{
		"sub": *sub,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(*ttl).Unix(),
	}
	if *role != "" {
		claims["role"] = *role
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(*secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error signing token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(signed)
}
