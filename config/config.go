package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration settings for the application.
type Config struct {
	// Server settings
	ListenAddress string
	ListenPort    string
	GinMode       string

	// Data settings
	DataDir   string // directory of per-collection seed JSON files
	RulesFile string // optional JSON rule set, empty uses built-in defaults

	// Authentication settings
	IdentityField string // unique login field on user records
	TokenSecret   string // the actual secret key
	SecretFile    string // path to the file containing the secret
	BcryptCost    int
}

const (
	defaultAddress    = "0.0.0.0"
	defaultPort       = "3030"
	defaultGinMode    = "release"
	defaultDataDir    = "./data"
	defaultRulesFile  = ""
	defaultIdentity   = "email"
	defaultSecretFile = ""               // no default file
	defaultKeyFile    = "./mockbase.key" // default file if we generate a key
	defaultBcryptCost = 10
)

// LoadConfig loads configuration from defaults, environment variables, and
// command-line flags. Flags take precedence over environment variables,
// which take precedence over defaults. A .env file in the working
// directory is loaded first, if present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Printf("INFO: loaded environment from .env file")
	}

	cfg := &Config{}

	// Use MOCKBASE_ prefix for environment variables to avoid conflicts
	flag.StringVar(&cfg.ListenAddress, "address", getEnv("MOCKBASE_LISTEN_ADDRESS", defaultAddress), "Server listen address (Env: MOCKBASE_LISTEN_ADDRESS)")
	flag.StringVar(&cfg.ListenPort, "port", getEnv("MOCKBASE_LISTEN_PORT", defaultPort), "Server listen port (Env: MOCKBASE_LISTEN_PORT)")
	flag.StringVar(&cfg.GinMode, "gin-mode", getEnv("MOCKBASE_GIN_MODE", defaultGinMode), "Gin mode: debug, release or test (Env: MOCKBASE_GIN_MODE)")
	flag.StringVar(&cfg.DataDir, "data-dir", getEnv("MOCKBASE_DATA_DIR", defaultDataDir), "Directory with per-collection seed JSON files (Env: MOCKBASE_DATA_DIR)")
	flag.StringVar(&cfg.RulesFile, "rules-file", getEnv("MOCKBASE_RULES_FILE", defaultRulesFile), "JSON rule set file, empty for built-in defaults (Env: MOCKBASE_RULES_FILE)")
	flag.StringVar(&cfg.IdentityField, "identity", getEnv("MOCKBASE_IDENTITY_FIELD", defaultIdentity), "Unique login field on user records (Env: MOCKBASE_IDENTITY_FIELD)")
	flag.StringVar(&cfg.SecretFile, "secret-file", getEnv("MOCKBASE_SECRET_FILE", defaultSecretFile), "Path to file containing the token secret (overrides MOCKBASE_SECRET env var) (Env: MOCKBASE_SECRET_FILE)")
	flag.IntVar(&cfg.BcryptCost, "bcrypt-cost", getEnvInt("MOCKBASE_BCRYPT_COST", defaultBcryptCost), "Bcrypt work factor for password hashing (Env: MOCKBASE_BCRYPT_COST)")

	flag.Parse()

	// --- Token Secret Handling ---
	// Priority: File (CLI/Env) > Env Var > Default Key File > Generate
	secretSource := ""

	if cfg.SecretFile != "" {
		secretBytes, err := os.ReadFile(cfg.SecretFile)
		if err == nil {
			cfg.TokenSecret = strings.TrimSpace(string(secretBytes))
			if cfg.TokenSecret != "" {
				secretSource = fmt.Sprintf("File (%s)", cfg.SecretFile)
			} else {
				log.Printf("WARN: Specified secret file '%s' is empty. Ignoring.", cfg.SecretFile)
			}
		} else {
			log.Printf("WARN: Failed to read specified secret file '%s': %v. Checking other sources.", cfg.SecretFile, err)
		}
	}

	if cfg.TokenSecret == "" {
		cfg.TokenSecret = strings.TrimSpace(getEnv("MOCKBASE_SECRET", ""))
		if cfg.TokenSecret != "" {
			secretSource = "Environment Variable (MOCKBASE_SECRET)"
		}
	}

	if cfg.TokenSecret == "" {
		secretBytes, err := os.ReadFile(defaultKeyFile)
		if err == nil {
			cfg.TokenSecret = strings.TrimSpace(string(secretBytes))
			if cfg.TokenSecret != "" {
				secretSource = fmt.Sprintf("Default Key File (%s)", defaultKeyFile)
			}
		} else if !os.IsNotExist(err) {
			log.Printf("WARN: Failed to read default key file '%s': %v. Will attempt generation.", defaultKeyFile, err)
		}
	}

	if cfg.TokenSecret == "" {
		log.Printf("INFO: Token secret not found via file or environment. Generating a new secret...")
		newSecret, err := generateRandomKey(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate token secret: %w", err)
		}
		cfg.TokenSecret = newSecret

		if err := os.WriteFile(defaultKeyFile, []byte(newSecret), 0600); err != nil {
			log.Printf("WARN: Failed to save generated secret to '%s': %v. The server will use the generated key for this session only.", defaultKeyFile, err)
			secretSource = "Generated (In Memory)"
		} else {
			secretSource = fmt.Sprintf("Generated & Saved (%s)", defaultKeyFile)
		}
	}

	// --- Data Directory Validation ---
	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for data-dir '%s': %w", cfg.DataDir, err)
	}
	cfg.DataDir = absDataDir

	if info, err := os.Stat(cfg.DataDir); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("data path '%s' points to a file, not a directory", cfg.DataDir)
	}
	// A missing data dir is fine, the server just starts empty.

	if cfg.IdentityField == "" {
		return nil, fmt.Errorf("identity field must not be empty")
	}

	logConfiguration(cfg, secretSource)

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable or returns a default
// value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("WARN: Invalid integer value for environment variable %s: '%s'. Using default: %d", key, value, fallback)
	}
	return fallback
}

// logConfiguration prints the loaded configuration settings.
func logConfiguration(cfg *Config, secretSource string) {
	log.Println("--- Configuration ---")
	log.Printf("Server Address: %s", cfg.ListenAddress)
	log.Printf("Server Port: %s", cfg.ListenPort)
	log.Printf("Gin Mode: %s", cfg.GinMode)
	log.Printf("Data Directory: %s", cfg.DataDir)
	if cfg.RulesFile != "" {
		log.Printf("Rules File: %s", cfg.RulesFile)
	} else {
		log.Printf("Rules File: (built-in defaults)")
	}
	log.Printf("Identity Field: %s", cfg.IdentityField)
	log.Printf("Token Secret Source: %s", secretSource)
	log.Printf("Bcrypt Cost: %d", cfg.BcryptCost)
	log.Println("---------------------")
}

// generateRandomKey generates a cryptographically secure random key of the
// specified byte length and returns it as a hex-encoded string.
func generateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
