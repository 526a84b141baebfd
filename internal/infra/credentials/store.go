// Package credentials keeps provider API keys in the integration_tokens table.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/maykecorrea/dressup/internal/infra"
	"github.com/maykecorrea/dressup/internal/sqlinline"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderQwen   = "qwen"
)

// Providers lists the names accepted by SetToken.
var Providers = []string{ProviderOpenAI, ProviderGemini, ProviderQwen}

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrEmptyToken      = errors.New("api key is required")
	ErrNotFound        = errors.New("no key stored for provider")
)

// Entry describes a stored key without exposing it.
type Entry struct {
	Provider  string
	Source    string
	UpdatedAt time.Time
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	var token string
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, normalize(provider)).Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("load %s key: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

// SetToken stores key for a known provider. source is recorded for List.
func (s *Store) SetToken(ctx context.Context, provider, key, source string) error {
	provider, err := checkProvider(provider)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%s: %w", provider, ErrEmptyToken)
	}
	props, err := json.Marshal(map[string]string{"source": source})
	if err != nil {
		return err
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, key, props); err != nil {
		return fmt.Errorf("store %s key: %w", provider, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListIntegrationTokens)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Provider, &e.Source, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, provider string) error {
	provider, err := checkProvider(provider)
	if err != nil {
		return err
	}
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteIntegrationToken, provider)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", provider, ErrNotFound)
	}
	return nil
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func checkProvider(provider string) (string, error) {
	p := normalize(provider)
	if !slices.Contains(Providers, p) {
		return "", fmt.Errorf("%w %q", ErrUnknownProvider, provider)
	}
	return p, nil
}
