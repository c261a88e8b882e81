// ABOUTME: Entry point for the registryd agent registry server
// ABOUTME: Commands: serve, init, token, health

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/intellex/agent-registry/internal/auth"
	"github.com/intellex/agent-registry/internal/config"
	"github.com/intellex/agent-registry/internal/registry"
	"github.com/intellex/agent-registry/internal/reputation"
	"github.com/intellex/agent-registry/internal/server"
	"github.com/intellex/agent-registry/internal/store"
	"github.com/intellex/agent-registry/internal/syncer"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                 _     _                   _
  _ __ ___  __ _(_)___| |_ _ __ _   _  __| |
 | '__/ _ \/ _' | / __| __| '__| | | |/ _' |
 | | |  __/ (_| | \__ \ |_| |  | |_| | (_| |
 |_|  \___|\__, |_|___/\__|_|   \__,_|\__,_|
           |___/
`

// getConfigPath returns the path to the registryd config file.
// Priority: REGISTRYD_CONFIG env var > XDG_CONFIG_HOME/registryd/registryd.yaml > ~/.config/registryd/registryd.yaml
func getConfigPath() string {
	if envPath := os.Getenv("REGISTRYD_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "registryd.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "registryd", "registryd.yaml")
}

// getDataPath returns the path to the registryd data directory.
// Priority: XDG_DATA_HOME/registryd > ~/.local/share/registryd
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "registryd")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: registryd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                 Start the registry server")
		fmt.Println("  init                  Create a new config file interactively")
		fmt.Println("  token --sub IDENTITY  Mint a caller token for an identity")
		fmt.Println("  health                Check registry health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:       %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Reputation: %s\n", cfg.Reputation.BaseURL)
	if cfg.Token.BaseURL != "" {
		green.Print("    ▶ ")
		fmt.Printf("Token:      %s\n", cfg.Token.BaseURL)
	}

	fmt.Println()

	logger.Info("starting registryd",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"reputation_service", cfg.Reputation.ServiceID,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	repClient := reputation.NewClient(cfg.Reputation.BaseURL, cfg.Reputation.RequestTimeout, logger)

	svcOpts := registry.Options{
		ServiceID:  cfg.Reputation.ServiceID,
		MinBalance: cfg.Token.MinBalance,
		Notifier:   repClient,
		Logger:     logger,
	}
	if cfg.Token.BaseURL != "" {
		svcOpts.Balances = reputation.NewTokenClient(cfg.Token.BaseURL, cfg.Reputation.RequestTimeout, logger)
	}
	svc := registry.NewService(st, svcOpts)

	callback := syncer.NewClient(cfg.Server.PublicURL, cfg.Reputation.ServiceID,
		verifier, cfg.Reputation.RequestTimeout, logger)
	orch := syncer.New(st, repClient, callback, syncer.Options{
		MaxRetries:   cfg.Sync.MaxRetries,
		RetryBackoff: cfg.Sync.RetryBackoff,
		JobRetention: cfg.Sync.JobRetention,
		Logger:       logger,
	})
	defer orch.Close()

	srv := server.New(cfg.Server.HTTPAddr, svc, orch, verifier, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// runToken mints a caller JWT for the given identity using the configured
// shared secret. Hand the result to an agent (or the reputation service) so
// it can talk to the API.
func runToken() error {
	var subject string
	ttl := 30 * 24 * time.Hour

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--sub" || arg == "-s":
			if i+1 >= len(args) {
				return fmt.Errorf("--sub requires a value")
			}
			subject = args[i+1]
			i++
		case strings.HasPrefix(arg, "--sub="):
			subject = strings.TrimPrefix(arg, "--sub=")
		case arg == "--ttl":
			if i+1 >= len(args) {
				return fmt.Errorf("--ttl requires a value")
			}
			parsed, err := time.ParseDuration(args[i+1])
			if err != nil {
				return fmt.Errorf("parsing --ttl: %w", err)
			}
			ttl = parsed
			i++
		case strings.HasPrefix(arg, "--ttl="):
			parsed, err := time.ParseDuration(strings.TrimPrefix(arg, "--ttl="))
			if err != nil {
				return fmt.Errorf("parsing --ttl: %w", err)
			}
			ttl = parsed
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("--sub flag is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	token, err := verifier.Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Token for %s (expires %s)\n\n", subject,
		time.Now().Add(ttl).UTC().Format("Jan 02, 2006"))
	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("registryd configuration setup")
	fmt.Println("=============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "registry.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")
	publicURL := prompt(reader, "Public URL (for sync callbacks)", "http://"+httpAddr)

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Collaborators
	fmt.Println("\n--- Reputation Service ---")
	repURL := prompt(reader, "Reputation service base URL", "http://localhost:8090")
	repID := prompt(reader, "Reputation service identity", "reputation.service")

	fmt.Println("\n--- Token Service (optional) ---")
	tokenURL := prompt(reader, "Token service base URL (empty to disable)", "")
	minBalance := prompt(reader, "Advisory minimum balance", "0")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate a random JWT secret for the new install
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# registryd configuration\n")
	cfg.WriteString("# Generated by registryd init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString(fmt.Sprintf("  public_url: \"%s\"\n", publicURL))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	cfg.WriteString("\n")

	cfg.WriteString("reputation:\n")
	cfg.WriteString(fmt.Sprintf("  base_url: \"%s\"\n", repURL))
	cfg.WriteString(fmt.Sprintf("  service_id: \"%s\"\n", repID))
	cfg.WriteString("  request_timeout: \"10s\"\n")
	cfg.WriteString("\n")

	if tokenURL != "" {
		cfg.WriteString("token:\n")
		cfg.WriteString(fmt.Sprintf("  base_url: \"%s\"\n", tokenURL))
		cfg.WriteString(fmt.Sprintf("  min_balance: %s\n", minBalance))
		cfg.WriteString("\n")
	}

	cfg.WriteString("sync:\n")
	cfg.WriteString("  max_retries: 3\n")
	cfg.WriteString("  retry_backoff: \"2s\"\n")
	cfg.WriteString("  job_retention: \"24h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  registryd serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
