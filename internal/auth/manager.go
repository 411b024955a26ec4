// Package auth turns configured credentials into go-git transport methods and
// git command-line settings.
package auth

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"git.home.luguber.info/inful/repocache/internal/config"
	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
)

// Provider handles one authentication method.
type Provider interface {
	Type() config.AuthType
	// CreateAuth returns nil, nil when no authentication is needed.
	CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error)
	// CLISettings returns extra `git -c` settings and environment for the git binary.
	CLISettings(cfg *config.AuthConfig) (gitConfig []string, env []string, err error)
	ValidateConfig(cfg *config.AuthConfig) error
}

// Manager dispatches to the provider registered for an auth type.
type Manager struct {
	providers map[config.AuthType]Provider
}

// NewManager creates a manager with the standard providers.
func NewManager() *Manager {
	m := &Manager{providers: make(map[config.AuthType]Provider)}
	for _, p := range []Provider{noneProvider{}, sshProvider{}, tokenProvider{}, basicProvider{}} {
		m.Register(p)
	}
	return m
}

// Register adds or replaces a provider.
func (m *Manager) Register(p Provider) { m.providers[p.Type()] = p }

func (m *Manager) provider(cfg *config.AuthConfig) (Provider, *config.AuthConfig, error) {
	if cfg.IsZero() {
		cfg = &config.AuthConfig{Type: config.AuthTypeNone}
	}
	p, ok := m.providers[cfg.Type]
	if !ok {
		return nil, nil, ferrors.ConfigError("unsupported authentication type").
			WithContext("type", string(cfg.Type)).Build()
	}
	if err := p.ValidateConfig(cfg); err != nil {
		return nil, nil, ferrors.WrapError(err, ferrors.CategoryAuth, "authentication configuration invalid").
			WithContext("type", string(cfg.Type)).UserAction().Build()
	}
	return p, cfg, nil
}

// CreateAuth is the entry point for go-git operations needing authentication.
func (m *Manager) CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	p, cfg, err := m.provider(cfg)
	if err != nil {
		return nil, err
	}
	method, err := p.CreateAuth(cfg)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryAuth, "failed to create authentication").
			WithContext("type", string(cfg.Type)).Build()
	}
	return method, nil
}

// CLISettings is the entry point for the git binary.
func (m *Manager) CLISettings(cfg *config.AuthConfig) ([]string, []string, error) {
	p, cfg, err := m.provider(cfg)
	if err != nil {
		return nil, nil, err
	}
	return p.CLISettings(cfg)
}

// DefaultManager is a package-level instance for convenience.
var DefaultManager = NewManager()

// CreateAuth uses the default manager.
func CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	return DefaultManager.CreateAuth(cfg)
}

type noneProvider struct{}

func (noneProvider) Type() config.AuthType                                      { return config.AuthTypeNone }
func (noneProvider) CreateAuth(*config.AuthConfig) (transport.AuthMethod, error) { return nil, nil }
func (noneProvider) CLISettings(*config.AuthConfig) ([]string, []string, error) { return nil, nil, nil }
func (noneProvider) ValidateConfig(*config.AuthConfig) error                    { return nil }

type sshProvider struct{}

func (sshProvider) Type() config.AuthType { return config.AuthTypeSSH }

func keyPath(cfg *config.AuthConfig) string {
	if cfg.KeyPath != "" {
		return cfg.KeyPath
	}
	return filepath.Join(os.Getenv("HOME"), ".ssh", "id_rsa")
}

func (sshProvider) CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	keys, err := ssh.NewPublicKeysFromFile("git", keyPath(cfg), cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key from %s: %w", keyPath(cfg), err)
	}
	return keys, nil
}

func (sshProvider) CLISettings(cfg *config.AuthConfig) ([]string, []string, error) {
	return nil, []string{fmt.Sprintf("GIT_SSH_COMMAND=ssh -i %s -o IdentitiesOnly=yes -o BatchMode=yes", keyPath(cfg))}, nil
}

func (sshProvider) ValidateConfig(cfg *config.AuthConfig) error {
	if _, err := os.Stat(keyPath(cfg)); err != nil {
		return fmt.Errorf("SSH key file does not exist: %s", keyPath(cfg))
	}
	return nil
}

type tokenProvider struct{}

func (tokenProvider) Type() config.AuthType { return config.AuthTypeToken }

// GitHub/GitLab/Forgejo accept "token" as the username for token auth.
func (tokenProvider) CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	return &http.BasicAuth{Username: "token", Password: cfg.Token}, nil
}

func (tokenProvider) CLISettings(cfg *config.AuthConfig) ([]string, []string, error) {
	return []string{basicHeader("token", cfg.Token)}, nil, nil
}

func (tokenProvider) ValidateConfig(cfg *config.AuthConfig) error {
	if cfg.Token == "" {
		return fmt.Errorf("token authentication requires a token")
	}
	return nil
}

type basicProvider struct{}

func (basicProvider) Type() config.AuthType { return config.AuthTypeBasic }

func (basicProvider) CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	return &http.BasicAuth{Username: cfg.Username, Password: cfg.Password}, nil
}

func (basicProvider) CLISettings(cfg *config.AuthConfig) ([]string, []string, error) {
	return []string{basicHeader(cfg.Username, cfg.Password)}, nil, nil
}

func (basicProvider) ValidateConfig(cfg *config.AuthConfig) error {
	if cfg.Username == "" || cfg.Password == "" {
		return fmt.Errorf("basic authentication requires username and password")
	}
	return nil
}

func basicHeader(user, pass string) string {
	creds := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
	return "http.extraHeader=Authorization: Basic " + creds
}
