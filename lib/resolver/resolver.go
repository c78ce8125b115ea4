// Package resolver normalizes raw streamer tokens (numeric ids, profile
// URLs, login names) into validated broadcaster identities.
package resolver

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/snipebot/streamwatch/twitch"
)

type IdentityAPI interface {
	UsersByID(ctx context.Context, ids []string) ([]twitch.User, error)
	UsersByLogin(ctx context.Context, logins []string) ([]twitch.User, error)
}

// Broadcaster is one resolved identity. Raw preserves the token the user
// actually typed so failures can be reported in their own words.
type Broadcaster struct {
	ID          string
	DisplayName string
	Raw         string
}

type Resolver struct {
	log *zap.Logger
	api IdentityAPI
}

func NewResolver(log *zap.Logger, api IdentityAPI) *Resolver {
	if api == nil {
		panic("resolver: identity API must not be nil")
	}
	return &Resolver{log: log, api: api}
}

// Resolve classifies, deduplicates and batch-resolves tokens. It issues at
// most one validate-ids call and one resolve-logins call. Any failure in
// either batch fails the whole resolution.
func (r *Resolver) Resolve(ctx context.Context, tokens []string) ([]Broadcaster, error) {
	idRaw := map[string]string{}     // candidate id -> first raw token
	loginRaw := map[string]string{}  // lowercased login -> first raw token
	var idOrder, loginOrder []string // preserve input order for the batch calls

	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		if isDigits(token) {
			if _, ok := idRaw[token]; !ok {
				idRaw[token] = token
				idOrder = append(idOrder, token)
			}
			continue
		}

		login := token
		if extracted, ok := loginFromProfileURL(token); ok {
			login = extracted
		}
		key := strings.ToLower(login)
		if _, ok := loginRaw[key]; !ok {
			loginRaw[key] = token
			loginOrder = append(loginOrder, login)
		}
	}

	var out []Broadcaster
	seen := map[string]bool{}

	if len(idOrder) > 0 {
		users, err := r.api.UsersByID(ctx, idOrder)
		if err != nil {
			return nil, fmt.Errorf("validating streamer ids: %w", err)
		}
		for _, u := range users {
			if seen[u.ID] {
				continue
			}
			seen[u.ID] = true
			out = append(out, Broadcaster{ID: u.ID, DisplayName: u.DisplayName, Raw: idRaw[u.ID]})
		}
	}

	if len(loginOrder) > 0 {
		users, err := r.api.UsersByLogin(ctx, loginOrder)
		if err != nil {
			return nil, fmt.Errorf("resolving streamer logins: %w", err)
		}
		for _, u := range users {
			if seen[u.ID] {
				continue
			}
			seen[u.ID] = true
			raw, ok := loginRaw[strings.ToLower(u.Login)]
			if !ok {
				raw = u.Login
			}
			out = append(out, Broadcaster{ID: u.ID, DisplayName: u.DisplayName, Raw: raw})
		}
	}

	return out, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}

// loginFromProfileURL extracts the login from a canonical Twitch profile URL
// (https://twitch.tv/<login>, one path segment). Anything else, including
// URLs on other hosts, is not treated as a URL at all.
func loginFromProfileURL(token string) (string, bool) {
	u, err := url.Parse(token)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	host := strings.ToLower(u.Host)
	if host != "twitch.tv" && host != "www.twitch.tv" {
		return "", false
	}
	segment := strings.Trim(u.Path, "/")
	if segment == "" || strings.Contains(segment, "/") {
		return "", false
	}
	return segment, true
}
