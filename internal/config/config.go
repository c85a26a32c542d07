package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const prefix = "XITEM_"

// Secrets holds one HMAC secret per token kind.
type Secrets struct {
	Auth       string
	Refresh    string
	Security   string
	Email      string
	Recovery   string
	Deletion   string
	Invitation string
}

// TTLs holds token lifetimes. Invitation lifetimes are chosen by the caller.
type TTLs struct {
	Auth     time.Duration
	Refresh  time.Duration
	Security time.Duration
	Email    time.Duration
	Recovery time.Duration
	Deletion time.Duration
}

type Config struct {
	AppName      string
	HTTPAddr     string
	GRPCAddr     string
	PGDSN        string
	Secrets      Secrets
	TTLs         TTLs
	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64
	CORSOrigins  []string
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	r := reader{getenv: getenv}
	cfg := Config{
		AppName:  r.str("APP_NAME", "Xitem"),
		HTTPAddr: r.str("HTTP_ADDR", ":8080"),
		GRPCAddr: r.str("GRPC_ADDR", ""),
		PGDSN:    r.str("PG_DSN", ""),
		Secrets: Secrets{
			Auth:       r.required("JWT_AUTH_SECRET"),
			Refresh:    r.required("JWT_REFRESH_SECRET"),
			Security:   r.required("JWT_SECURITY_SECRET"),
			Email:      r.required("JWT_EMAIL_SECRET"),
			Recovery:   r.required("JWT_RECOVERY_SECRET"),
			Deletion:   r.required("JWT_DELETION_SECRET"),
			Invitation: r.required("JWT_INVITATION_SECRET"),
		},
		TTLs: TTLs{
			Auth:     r.duration("JWT_AUTH_TTL", time.Hour),
			Refresh:  r.duration("JWT_REFRESH_TTL", 21*24*time.Hour),
			Security: r.duration("JWT_SECURITY_TTL", 5*time.Minute),
			Email:    r.duration("JWT_EMAIL_TTL", time.Hour),
			Recovery: r.duration("JWT_RECOVERY_TTL", 30*time.Minute),
			Deletion: r.duration("JWT_DELETION_TTL", 30*time.Minute),
		},
		RateBurst:    r.integer("RATE_BURST", 20),
		RatePerSec:   r.integer("RATE_PER_SEC", 10),
		MaxBodyBytes: int64(r.integer("MAX_BODY_BYTES", 1<<20)),
		CORSOrigins:  r.list("CORS_ORIGINS"),
	}
	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	if err := cfg.Secrets.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (s Secrets) validate() error {
	all := map[string]string{
		"auth":       s.Auth,
		"refresh":    s.Refresh,
		"security":   s.Security,
		"email":      s.Email,
		"recovery":   s.Recovery,
		"deletion":   s.Deletion,
		"invitation": s.Invitation,
	}
	seen := make(map[string]string, len(all))
	for kind, v := range all {
		if other, ok := seen[v]; ok {
			return fmt.Errorf("config: %s and %s token secrets must differ", other, kind)
		}
		seen[v] = kind
	}
	return nil
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) raw(key string) string {
	return strings.TrimSpace(r.getenv(prefix + key))
}

func (r *reader) str(key, def string) string {
	if v := r.raw(key); v != "" {
		return v
	}
	return def
}

func (r *reader) required(key string) string {
	v := r.raw(key)
	if v == "" {
		r.errs = append(r.errs, fmt.Errorf("config: %s%s is required", prefix, key))
	}
	return v
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.raw(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.errs = append(r.errs, fmt.Errorf("config: %s%s: invalid duration %q", prefix, key, v))
		return def
	}
	return d
}

func (r *reader) integer(key string, def int) int {
	v := r.raw(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		r.errs = append(r.errs, fmt.Errorf("config: %s%s: invalid positive integer %q", prefix, key, v))
		return def
	}
	return n
}

func (r *reader) list(key string) []string {
	v := r.raw(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
