package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// ErrInvalidConfig is returned when the provided config is not a pointer to a struct
// that embeds EnvConfig.
var ErrInvalidConfig = errors.New("config must be a pointer to a struct embedding EnvConfig")

// EnvConfig is a base type that must be embedded in configuration structs
// to enable environment variable parsing.
type EnvConfig struct {
	namespace string
}

// Namespace returns the namespace the config was parsed with.
func (c EnvConfig) Namespace() string {
	return c.namespace
}

//nolint:varnamelen
func getEnvConfig(cfg any) (*EnvConfig, error) {
	v := reflect.ValueOf(cfg)

	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return nil, ErrInvalidConfig
	}

	v = v.Elem()
	t := v.Type()

	for i := range t.NumField() {
		field := t.Field(i)
		//nolint:exhaustruct,forcetypeassert
		if field.Anonymous && field.Type == reflect.TypeOf(EnvConfig{}) {
			if ev := v.Field(i); ev.CanAddr() {
				return ev.Addr().Interface().(*EnvConfig), nil
			}
		}
	}

	return nil, ErrInvalidConfig
}

// Parse loads configuration values from environment variables into the provided struct.
// The struct must embed EnvConfig and use go-envconfig `env` tags; nested
// structs take their prefix from `env:",prefix=..."`.
//
// The namespace is split on "_" and tried from most to least specific, so
// with namespace "JOBBOARD_SESSIONCTL" the field LOG_LEVEL is looked up as
// JOBBOARD_SESSIONCTL_LOG_LEVEL, then JOBBOARD_LOG_LEVEL, then LOG_LEVEL.
func Parse(ctx context.Context, cfg any, namespace string) error {
	return ParseWith(ctx, cfg, namespace, envconfig.OsLookuper())
}

// ParseWith is Parse with an explicit source of values.
func ParseWith(ctx context.Context, cfg any, namespace string, lookuper envconfig.Lookuper) error {
	envConfig, err := getEnvConfig(cfg)
	if err != nil {
		return fmt.Errorf("get env config: %w", err)
	}

	envConfig.namespace = namespace

	//nolint:exhaustruct
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: NamespaceLookuper(namespace, lookuper),
	}); err != nil {
		return fmt.Errorf("process env: %w", err)
	}

	return nil
}

type namespaceLookuper struct {
	prefixes []string
	next     envconfig.Lookuper
}

var _ envconfig.Lookuper = (*namespaceLookuper)(nil)

// NamespaceLookuper wraps a Lookuper so keys are resolved under every
// "_"-separated prefix of namespace, longest first, and finally unprefixed.
func NamespaceLookuper(namespace string, next envconfig.Lookuper) envconfig.Lookuper {
	var prefixes []string

	if namespace != "" {
		parts := strings.Split(namespace, "_")
		for i := len(parts); i > 0; i-- {
			prefixes = append(prefixes, strings.Join(parts[:i], "_")+"_")
		}
	}

	prefixes = append(prefixes, "")

	return &namespaceLookuper{prefixes: prefixes, next: next}
}

func (l *namespaceLookuper) Lookup(key string) (string, bool) {
	for _, prefix := range l.prefixes {
		if v, ok := l.next.Lookup(prefix + key); ok {
			return v, true
		}
	}

	return "", false
}
