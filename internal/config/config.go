package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or an env-file loaded in main).
// No business logic should depend on raw environment variables.
type Config struct {
	App   AppConfig
	DB    DBConfig
	Redis RedisConfig
	Auth  AuthConfig
	Elks  ElksConfig
	IVR   IVRConfig
}

type AppConfig struct {
	Env  string
	Port int

	// BaseURL is the public URL of this deployment. The telephony
	// provider fetches webhook callbacks and audio from it, so it must
	// be reachable from the internet.
	BaseURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	TokenTTL    time.Duration

	// OperatorSecret is the shared secret exchanged for an API token.
	// This is a single-operator campaign tool; there is no user table.
	OperatorSecret string
}

type ElksConfig struct {
	Username string
	Password string

	// AllowedIPs is the provider's published webhook source list.
	AllowedIPs []string

	// RingTimeout is how long the user's phone rings, in seconds.
	RingTimeout int

	// DryRun skips talking to the provider at startup (no number
	// inventory fetch). Useful for local development.
	DryRun bool
}

type IVRConfig struct {
	// AudioDir holds the IVR audio clips (<name>.<lang>.ogg).
	AudioDir         string
	FallbackLanguage string

	// MenuTimeout / MenuRepeat are propagated to the provider with
	// every digit-collection prompt.
	MenuTimeout int
	MenuRepeat  int

	// ShortCallThreshold separates FINISHED_SHORT_CALL from
	// FINISHED_CALL at hangup time.
	ShortCallThreshold time.Duration

	// AltDestinationAttempts bounds the search for a free alternative
	// destination when the preferred one is busy.
	AltDestinationAttempts int

	// MedialistTTL is how long an assembled medialist stays resolvable
	// for the provider's audio fetch.
	MedialistTTL time.Duration

	// NumberRefreshInterval re-syncs the caller-ID pool from the
	// provider. Zero disables periodic refresh.
	NumberRefreshInterval time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("BASE_URL")), "/")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.TokenTTL = optDuration("JWT_TOKEN_TTL")
	c.Auth.OperatorSecret = os.Getenv("OPERATOR_SECRET")

	c.Elks.Username = strings.TrimSpace(os.Getenv("ELKS_USERNAME"))
	c.Elks.Password = os.Getenv("ELKS_PASSWORD")
	c.Elks.AllowedIPs = splitList(os.Getenv("ELKS_ALLOWED_IPS"))
	c.Elks.RingTimeout = optInt("ELKS_RING_TIMEOUT")
	c.Elks.DryRun = optBool("ELKS_DRY_RUN")

	c.IVR.AudioDir = strings.TrimSpace(os.Getenv("AUDIO_DIR"))
	c.IVR.FallbackLanguage = strings.TrimSpace(os.Getenv("IVR_FALLBACK_LANGUAGE"))
	c.IVR.MenuTimeout = optInt("IVR_MENU_TIMEOUT")
	c.IVR.MenuRepeat = optInt("IVR_MENU_REPEAT")
	c.IVR.ShortCallThreshold = optDuration("SHORT_CALL_THRESHOLD")
	c.IVR.AltDestinationAttempts = optInt("ALT_DESTINATION_ATTEMPTS")
	c.IVR.MedialistTTL = optDuration("MEDIALIST_TTL")
	c.IVR.NumberRefreshInterval = optDuration("NUMBER_REFRESH_INTERVAL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.BaseURL == "" {
		errs = append(errs, errors.New("BASE_URL is required"))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.OperatorSecret == "" {
		errs = append(errs, errors.New("OPERATOR_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 1 * time.Hour
	}

	if !c.Elks.DryRun {
		if c.Elks.Username == "" {
			errs = append(errs, errors.New("ELKS_USERNAME is required"))
		}
		if c.Elks.Password == "" {
			errs = append(errs, errors.New("ELKS_PASSWORD is required"))
		}
		if len(c.Elks.AllowedIPs) == 0 {
			errs = append(errs, errors.New("ELKS_ALLOWED_IPS is required"))
		}
	}
	if c.Elks.RingTimeout <= 0 {
		c.Elks.RingTimeout = 13
	}

	if c.IVR.AudioDir == "" {
		errs = append(errs, errors.New("AUDIO_DIR is required"))
	}
	if c.IVR.FallbackLanguage == "" {
		c.IVR.FallbackLanguage = "en"
	}
	if c.IVR.MenuTimeout <= 0 {
		c.IVR.MenuTimeout = 5
	}
	if c.IVR.MenuRepeat <= 0 {
		c.IVR.MenuRepeat = 2
	}
	if c.IVR.ShortCallThreshold <= 0 {
		c.IVR.ShortCallThreshold = 10 * time.Second
	}
	if c.IVR.AltDestinationAttempts <= 0 {
		c.IVR.AltDestinationAttempts = 3
	}
	if c.IVR.MedialistTTL <= 0 {
		c.IVR.MedialistTTL = 1 * time.Hour
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// PhoneBaseURL is the callback prefix handed to the telephony provider.
func (c Config) PhoneBaseURL() string {
	return c.App.BaseURL + "/phone"
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func optBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
