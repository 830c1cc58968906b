// Команда tokengen выпускает access-токены для локальной разработки.
// В продакшене токены выдает внешняя подсистема сессий, этот инструмент
// подписывает совместимые токены тем же секретом.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/tasksync/internal/server/handlers"
	"github.com/iudanet/tasksync/internal/validation"
)

func main() {
	userID := flag.String("user", "", "user id to embed in the token")
	secret := flag.String("secret", os.Getenv("TASKSYNC_JWT_SECRET"), "JWT signing secret (defaults to TASKSYNC_JWT_SECRET env)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	token, err := generate(*userID, *secret, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}

func generate(userID, secret string, ttl time.Duration) (string, error) {
	if err := validation.ValidateUserID(userID); err != nil {
		return "", fmt.Errorf("invalid -user: %w", err)
	}
	if secret == "" {
		return "", fmt.Errorf("signing secret is required (set -secret or TASKSYNC_JWT_SECRET)")
	}

	now := time.Now()
	claims := handlers.CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
