package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"

	"github.com/maykecorrea/dressup/internal/infra"
	"github.com/maykecorrea/dressup/internal/infra/credentials"
)

// envKeys names the variable read when -key is omitted.
var envKeys = map[string]string{
	credentials.ProviderOpenAI: "OPENAI_API_KEY",
	credentials.ProviderGemini: "GEMINI_API_KEY",
	credentials.ProviderQwen:   "QWEN_API_KEY",
}

type keyStore interface {
	SetToken(ctx context.Context, provider, key, source string) error
	List(ctx context.Context) ([]credentials.Entry, error)
	Delete(ctx context.Context, provider string) error
}

const usage = `usage: providerkey <command> [flags]

commands:
  set -provider NAME [-key KEY]   store a key (falls back to the provider's env var)
  list                            show which providers have a stored key
  delete -provider NAME           remove a stored key
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "providerkey").Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	if err := run(ctx, store, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "providerkey: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, store keyStore, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	provider := fs.String("provider", credentials.ProviderOpenAI, "provider: "+strings.Join(credentials.Providers, ", "))
	key := fs.String("key", "", "API key (set only)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	switch args[0] {
	case "set":
		value := strings.TrimSpace(*key)
		if value == "" {
			value = strings.TrimSpace(os.Getenv(envKeys[strings.ToLower(*provider)]))
		}
		if value == "" {
			return fmt.Errorf("%s key is required via -key or %s", *provider, envKeys[strings.ToLower(*provider)])
		}
		if err := store.SetToken(ctx, *provider, value, "providerkey"); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s API key stored\n", strings.ToUpper(*provider))
	case "list":
		entries, err := store.List(ctx)
		if err != nil {
			return err
		}
		tw := table.NewWriter()
		tw.SetOutputMirror(out)
		tw.AppendHeader(table.Row{"Provider", "Source", "Updated"})
		for _, e := range entries {
			tw.AppendRow(table.Row{e.Provider, e.Source, e.UpdatedAt.Format(time.RFC3339)})
		}
		tw.Render()
	case "delete":
		if err := store.Delete(ctx, *provider); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s API key removed\n", strings.ToUpper(*provider))
	default:
		return errors.New("unknown command " + args[0] + "\n" + usage)
	}
	return nil
}
