// Package account resolves trading accounts from the environment. The core
// never parses env vars or files itself; it receives the resolved list.
package account

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Account is one resolved credentials/symbol tuple.
type Account struct {
	Name      string
	APIKey    string
	APISecret string
	Symbol    string
}

// Load resolves the ordered account list. A .env file at envPath is merged
// into the environment first when present; real environment variables win.
//
// Numbered accounts use ACCOUNT_1_API_KEY, ACCOUNT_1_API_SECRET,
// ACCOUNT_1_SYMBOL (and optional ACCOUNT_1_NAME), counting up from 1 until
// the first gap. With no numbered accounts, the single-account form
// API_KEY / API_SECRET / SYMBOL is tried. No usable account is fatal at
// startup; there is no trading without credentials.
func Load(envPath string) ([]Account, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err == nil {
			slog.Info("loaded env file", slog.String("path", envPath))
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file %s: %w", envPath, err)
		}
	}

	var accounts []Account
	for i := 1; ; i++ {
		prefix := fmt.Sprintf("ACCOUNT_%d_", i)
		key := os.Getenv(prefix + "API_KEY")
		if key == "" {
			break
		}
		acct := Account{
			Name:      os.Getenv(prefix + "NAME"),
			APIKey:    key,
			APISecret: os.Getenv(prefix + "API_SECRET"),
			Symbol:    os.Getenv(prefix + "SYMBOL"),
		}
		if acct.Name == "" {
			acct.Name = fmt.Sprintf("account-%d", i)
		}
		if err := validate(acct); err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		accounts = append(accounts, acct)
	}

	if len(accounts) == 0 {
		if key := os.Getenv("API_KEY"); key != "" {
			acct := Account{
				Name:      "default",
				APIKey:    key,
				APISecret: os.Getenv("API_SECRET"),
				Symbol:    os.Getenv("SYMBOL"),
			}
			if err := validate(acct); err != nil {
				return nil, err
			}
			accounts = append(accounts, acct)
		}
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no account credentials configured")
	}
	return accounts, nil
}

func validate(a Account) error {
	if a.APISecret == "" {
		return fmt.Errorf("missing API secret")
	}
	if strings.TrimSpace(a.Symbol) == "" {
		return fmt.Errorf("missing symbol")
	}
	return nil
}
