// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the server configuration from the JSON file named by
// the CONFIG_PATH environment variable.
package config

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// BindAddress is the address the HTTP server listens on.
const BindAddress = "0.0.0.0:2521"

// Provider selects the authorization backend.
type Provider string

// Supported authorization providers.
const (
	ProviderLocal   Provider = "Local"
	ProviderEspoCrm Provider = "EspoCrm"
)

// Config is the full server configuration.
type Config struct {
	HTTP                  HTTPConfig           `mapstructure:"http"`
	Database              DatabaseConfig       `mapstructure:"database"`
	AuthorizationProvider Provider             `mapstructure:"authorization_provider"`
	Espo                  *EspoConfig          `mapstructure:"espo"`
	DefaultClient         DefaultClientConfig  `mapstructure:"default_client"`
	OidcSigningKey        string               `mapstructure:"oidc_signing_key"`
	OidcPublicKey         string               `mapstructure:"oidc_public_key"`
	OidcIssuer            string               `mapstructure:"oidc_issuer"`
	Email                 *EmailConfig         `mapstructure:"email"`
}

// HTTPConfig holds the externally visible URLs of the server.
type HTTPConfig struct {
	// UILoginPath is the absolute URL of the consent UI login page.
	UILoginPath string `mapstructure:"ui_login_path"`
	// UIEmailVerificationPath is the absolute URL of the email verification
	// page. The server appends `?code=…&user_id=…`.
	UIEmailVerificationPath string `mapstructure:"ui_email_verification_path"`
	// The endpoint values published in the OIDC discovery document.
	AuthorizationEndpoint string `mapstructure:"authorization_endpoint"`
	TokenEndpoint         string `mapstructure:"token_endpoint"`
	JwksURIEndpoint       string `mapstructure:"jwks_uri_endpoint"`
}

// DatabaseConfig holds the MySQL connection parameters.
type DatabaseConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Database string `mapstructure:"database"`
}

// DSN returns the go-sql-driver DSN for the configured database.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&multiStatements=true",
		d.User, d.Password, d.Host, d.Database)
}

// EspoConfig holds the EspoCRM connection parameters. Required iff the
// EspoCrm authorization provider is selected.
type EspoConfig struct {
	Host      string `mapstructure:"host"`
	APIKey    string `mapstructure:"api_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// DefaultClientConfig configures the internal OAuth2 client created at bootstrap.
type DefaultClientConfig struct {
	RedirectURI string `mapstructure:"redirect_uri"`
}

// EmailConfig configures outbound transactional email. When absent, mails are
// logged instead of sent.
type EmailConfig struct {
	SMTP       string `mapstructure:"smtp"`
	From       string `mapstructure:"from"`
	BannerFile string `mapstructure:"banner_file"`
}

// Load reads the configuration from the file named by CONFIG_PATH.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		return nil, errors.New("CONFIG_PATH environment variable is not set")
	}
	return LoadFile(path)
}

// LoadFile reads the configuration from the given JSON file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.AuthorizationProvider == "" {
		c.AuthorizationProvider = ProviderLocal
	}
	switch c.AuthorizationProvider {
	case ProviderLocal:
	case ProviderEspoCrm:
		if c.Espo == nil {
			return errors.New("espo configuration is required when the EspoCrm authorization provider is selected")
		}
	default:
		return fmt.Errorf("unknown authorization provider %q", c.AuthorizationProvider)
	}

	if c.OidcSigningKey == "" || c.OidcPublicKey == "" {
		return errors.New("oidc_signing_key and oidc_public_key are required")
	}
	if c.OidcIssuer == "" {
		return errors.New("oidc_issuer is required")
	}
	return nil
}

// ReadSigningKey loads and parses the configured RSA private key (PEM,
// PKCS#8 or PKCS#1).
func (c *Config) ReadSigningKey() (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(c.OidcSigningKey)
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}
	return ParsePrivateKeyPEM(data)
}

// ReadPublicKey loads and parses the configured RSA public key (PEM, PKIX or
// PKCS#1).
func (c *Config) ReadPublicKey() (*rsa.PublicKey, error) {
	data, err := os.ReadFile(c.OidcPublicKey)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	return ParsePublicKeyPEM(data)
}

// ParsePrivateKeyPEM parses an RSA private key from PEM data.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found in signing key")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("signing key is not an RSA key")
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing signing key: %w", err)
	}
	return key, nil
}

// ParsePublicKeyPEM parses an RSA public key from PEM data.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found in public key")
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not an RSA key")
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	return key, nil
}
