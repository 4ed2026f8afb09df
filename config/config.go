package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	DefaultBackendURL  = "0.0.0.0"
	DefaultSecretToken = "my-secret-token"
	DefaultPort        = 3000
	DefaultPath        = "config.yaml"
)

const (
	keyBackendURL  = "backend_url"
	keySecretToken = "secret_token"
	keyPort        = "port"
	keyExtraValues = "extra_values"
)

const redacted = "[REDACTED]"

// Config is the resolved proxy configuration. It is built once by Load and
// never mutated afterwards.
type Config struct {
	BackendURL  string
	SecretToken string
	Port        uint16
	ExtraValues *string
}

// document mirrors the on-disk layout. Port is decoded as an int so that
// out-of-range values are rejected instead of being truncated.
type document struct {
	BackendURL  string  `mapstructure:"backend_url"`
	SecretToken string  `mapstructure:"secret_token"`
	Port        int     `mapstructure:"port"`
	ExtraValues *string `mapstructure:"extra_values"`
}

// Default returns the configuration used for every omitted field.
func Default() Config {
	return Config{
		BackendURL:  DefaultBackendURL,
		SecretToken: DefaultSecretToken,
		Port:        DefaultPort,
	}
}

// Load reads the file at path and decodes it into a Config. The raw file
// contents are returned alongside so callers can echo them.
func Load(path string) (*Config, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &ReadError{Path: path, Err: err}
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, nil, &ParseError{Path: path, Err: err}
	}

	slog.Debug("loaded config file", slog.String("file", path))

	return cfg, raw, nil
}

// Parse decodes a YAML document, applying defaults and rejecting unknown keys.
// Keys are matched exactly and values must already have the field's type.
func Parse(raw []byte) (*Config, error) {
	if err := checkDocument(raw); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")

	def := Default()
	v.SetDefault(keyBackendURL, def.BackendURL)
	v.SetDefault(keySecretToken, def.SecretToken)
	v.SetDefault(keyPort, int(def.Port))

	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, err
	}

	var doc document
	if err := v.UnmarshalExact(&doc, strictDecoding); err != nil {
		return nil, err
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return &Config{
		BackendURL:  doc.BackendURL,
		SecretToken: doc.SecretToken,
		Port:        uint16(doc.Port),
		ExtraValues: doc.ExtraValues,
	}, nil
}

func strictDecoding(dc *mapstructure.DecoderConfig) {
	dc.WeaklyTypedInput = false
}

func (d *document) Validate() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Port,
			validation.Min(0),
			validation.Max(65535),
		),
	)
}

// String renders the configuration without the secret.
func (c Config) String() string {
	extra := "<nil>"
	if c.ExtraValues != nil {
		extra = *c.ExtraValues
	}
	return fmt.Sprintf("backend_url=%s secret_token=%s port=%d extra_values=%s",
		c.BackendURL, redacted, c.Port, extra)
}

// LogValue keeps the secret out of structured logs.
func (c Config) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String(keyBackendURL, c.BackendURL),
		slog.String(keySecretToken, redacted),
		slog.Int(keyPort, int(c.Port)),
	}
	if c.ExtraValues != nil {
		attrs = append(attrs, slog.String(keyExtraValues, *c.ExtraValues))
	}
	return slog.GroupValue(attrs...)
}
