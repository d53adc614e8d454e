// issue_token signs an access token with JWT_SECRET for local testing of
// the REST and websocket endpoints.
//
//	go run ./scripts/issue_token -user user-001 -role ADMIN
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"edu-notify/internal/config"
	"edu-notify/internal/models"
	"edu-notify/pkg/auth"
)

func main() {
	userID := flag.String("user", "", "user id (required)")
	email := flag.String("email", "", "email claim")
	role := flag.String("role", string(models.RoleUser), "USER, MODERATOR, ADMIN or SUPER_ADMIN")
	flag.Parse()

	if *userID == "" {
		log.Fatal("-user is required")
	}
	if _, ok := models.ParseRole(*role); !ok {
		log.Fatalf("unknown role %q", *role)
	}

	cfg := config.Load()
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, time.Duration(cfg.JWTExpiration)*time.Hour)

	token, err := jwtManager.GenerateToken(*userID, *email, *role)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
}
