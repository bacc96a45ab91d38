package api

import (
	"context"
	"errors"
	"os"
	"strings"
)

// ErrNoToken is returned when no bearer credential is available.
var ErrNoToken = errors.New("no api token configured")

// TokenSource supplies the bearer credential for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer credential.
type StaticToken string

// Token returns the credential.
func (t StaticToken) Token(context.Context) (string, error) {
	token := strings.TrimSpace(string(t))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// EnvToken reads the credential from an environment variable on every request.
type EnvToken string

// Token returns the current value of the variable.
func (t EnvToken) Token(context.Context) (string, error) {
	token := strings.TrimSpace(os.Getenv(string(t)))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}
