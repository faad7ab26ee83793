// Package token looks up, validates and stores access tokens of the knowledge graph.
package token

import (
	"errors"
	"fmt"
	"os"
	osuser "os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/openbraininstitute/entitykit/pkg/utils/open"
)

// EnvVar is the environment variable which overrides stored tokens.
const EnvVar = "NEXUS_TOKEN"

var (
	ErrNoToken      = errors.New("token is not found")
	ErrInvalidToken = errors.New("token could not be decoded or has expired")
)

// Decode reads claims of a token, without verifying its signature.
func Decode(tok string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// Expiry returns when the token expires.
func Expiry(tok string) (time.Time, error) {
	claims, err := Decode(tok)
	if err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("%w: no 'exp' claim", ErrInvalidToken)
	}
	return exp.Time, nil
}

// Keyring stores tokens as files, one for each environment and user.
//
//	<root>/<environment>/<user>
type Keyring struct {
	root   string
	getenv func(string) (string, bool)
	now    func() time.Time
}

type Option func(*Keyring) *Keyring

// WithEnv replaces the lookup of environment variables.
func WithEnv(getenv func(string) (string, bool)) Option {
	return func(k *Keyring) *Keyring {
		k.getenv = getenv
		return k
	}
}

func WithClock(now func() time.Time) Option {
	return func(k *Keyring) *Keyring {
		k.now = now
		return k
	}
}

func NewKeyring(root string, options ...Option) *Keyring {
	k := &Keyring{root: root, getenv: os.LookupEnv, now: time.Now}
	for _, o := range options {
		k = o(k)
	}
	return k
}

// DefaultRoot is "~/.entity/tokens".
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".entity", "tokens"), nil
}

// Validate checks that the token decodes and is not expired.
func (k *Keyring) Validate(tok string) error {
	if tok == "" {
		return fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	exp, err := Expiry(tok)
	if err != nil {
		return err
	}
	if !k.now().Before(exp) {
		return fmt.Errorf("%w: expired at %s", ErrInvalidToken, exp.Format(time.RFC3339))
	}
	return nil
}

func (k *Keyring) path(env, user string) (string, error) {
	if user == "" {
		u, err := osuser.Current()
		if err != nil {
			return "", err
		}
		user = u.Username
	}
	for _, name := range []string{env, user} {
		if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
			return "", fmt.Errorf("invalid name for token file: '%s'", name)
		}
	}
	return filepath.Join(k.root, env, user), nil
}

// Get returns the token for the environment and user.
//
// The token in NEXUS_TOKEN is used first, and the stored token next.
// When user is empty, the current user is used.
func (k *Keyring) Get(env, user string) (string, error) {
	if tok, ok := k.getenv(EnvVar); ok {
		if err := k.Validate(tok); err != nil {
			return "", fmt.Errorf("%s in the environment is not valid, either set a working one or remove it: %w", EnvVar, err)
		}
		return tok, nil
	}

	p, err := k.path(env, user)
	if err != nil {
		return "", err
	}
	buf, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w for %s", ErrNoToken, env)
		}
		return "", err
	}
	tok := strings.TrimSpace(string(buf))
	if err := k.Validate(tok); err != nil {
		return "", err
	}
	return tok, nil
}

// Set validates and stores the token.
//
// The token file is readable only by the current user.
func (k *Keyring) Set(env, user, tok string) error {
	tok = strings.TrimSpace(tok)
	if err := k.Validate(tok); err != nil {
		return fmt.Errorf("%w (the length was %d)", err, len(tok))
	}
	p, err := k.path(env, user)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), os.FileMode(0700)); err != nil {
		return err
	}
	f, err := open.NewSafeFile(p)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(tok); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
