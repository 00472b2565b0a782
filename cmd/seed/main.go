// seed inserts a development admin for local testing.
// Idempotent: skips inserts if the dev admin (admin@leadflow.dev) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"leadflow/api/internal/config"
	"leadflow/api/internal/db"
	"leadflow/api/internal/rbac"
	"leadflow/api/internal/security"
	userdomain "leadflow/api/internal/user/domain"
	userrepo "leadflow/api/internal/user/repository"
)

const (
	devAdminEmail = "admin@leadflow.dev"
	devAgentEmail = "agent@leadflow.dev"
	devPassword   = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	ctx := context.Background()

	existing, err := users.GetByEmail(ctx, devAdminEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("Seed already applied (%s exists). Skipping.", devAdminEmail)
		return
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	now := time.Now().UTC()

	for email, role := range map[string]rbac.Role{
		devAdminEmail: rbac.RoleAdmin,
		devAgentEmail: rbac.RoleAgent,
	} {
		hash, salt, err := hasher.Hash([]byte(devPassword))
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		u := &userdomain.User{
			ID:           uuid.New().String(),
			Email:        email,
			PasswordHash: hash,
			PasswordSalt: salt,
			Role:         role,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("create %s: %v", email, err)
		}
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Admin login: %s / %s\n", devAdminEmail, devPassword)
	fmt.Printf("Agent login: %s / %s\n", devAgentEmail, devPassword)
}
