package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stemsi/diagnostic-gateway/internal/config"
	"github.com/stemsi/diagnostic-gateway/internal/logger"
	"github.com/stemsi/diagnostic-gateway/internal/model"
	"github.com/stemsi/diagnostic-gateway/internal/service"
	"golang.org/x/term"
)

// issue-token mints a gateway JWT for local development and smoke tests.
func main() {
	var (
		userID string
		role   string
		firmID string
		ttl    time.Duration
	)
	flag.StringVar(&userID, "user", "", "User id placed in the token")
	flag.StringVar(&role, "role", string(model.RoleClient), "advisor, firm_admin, client or super_admin")
	flag.StringVar(&firmID, "firm", "", "Firm id (optional)")
	flag.DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	// ─── CLI Input ─────────────────────────────────────────────────────
	if interactive && userID == "" {
		reader := bufio.NewReader(os.Stdin)
		fmt.Println("=== Issue Gateway Token ===")

		fmt.Print("Enter User ID: ")
		userID, _ = reader.ReadString('\n')
		userID = strings.TrimSpace(userID)

		fmt.Printf("Enter Role (default %s): ", role)
		if r, _ := reader.ReadString('\n'); strings.TrimSpace(r) != "" {
			role = strings.TrimSpace(r)
		}

		fmt.Print("Enter Firm ID (optional): ")
		if f, _ := reader.ReadString('\n'); strings.TrimSpace(f) != "" {
			firmID = strings.TrimSpace(f)
		}
	}

	if userID == "" {
		fmt.Fprintln(os.Stderr, "Error: user id is required")
		os.Exit(2)
	}
	if !model.Role(role).CanTakeSurvey() {
		fmt.Fprintf(os.Stderr, "Error: unknown role %q\n", role)
		os.Exit(2)
	}

	// Never sign with the placeholder secret by accident.
	if os.Getenv("JWT_SECRET") == "" && interactive {
		fmt.Print("Enter JWT secret: ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read secret")
		}
		if s := strings.TrimSpace(string(secret)); s != "" {
			cfg.JWTSecret = s
		}
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	token, err := service.NewAuthService(cfg).GenerateToken(userID, model.Role(role), firmID, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	if interactive {
		fmt.Printf("\nToken for %s (%s), valid for %s:\n", userID, role, ttl)
	}
	fmt.Println(token)
}
