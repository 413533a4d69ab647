// Command token mints a signed session token for local development.
// Token issuance is normally the identity service's job; this tool only
// exists so a tenant/user pair can exercise the API without one.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kchat-io/kchat/internal/api/middleware"
)

func main() {
	tenant := flag.String("tenant", "", "tenant identifier (required)")
	user := flag.String("user", "", "participant identifier (required)")
	secret := flag.String("secret", "kchat-dev-secret", "HMAC signing secret")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *tenant == "" || *user == "" {
		fmt.Fprintln(os.Stderr, "usage: token -tenant <tenant> -user <user> [-secret <secret>] [-ttl <duration>]")
		os.Exit(1)
	}

	now := time.Now()
	claims := middleware.Claims{
		Tenant: *tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   *user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(*secret))
	if err != nil {
		fmt.Fprintln(os.Stderr, "signing failed:", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
