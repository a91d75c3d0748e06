// Package config parses chproxy's CLI flags and environment variables
// into a single Config value built once at startup, in the flag.FlagSet
// idiom used throughout the teacher's cmd/skipper config package.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	defaultListenIP    = ""
	defaultListenPort  = 8000
	defaultAPIListenIP = ""
	defaultAPIPort     = 8001

	envAuthToken     = "CONFIGPROXY_AUTH_TOKEN"
	envDatabaseURL   = "CHP_DATABASE_URL"
	envDatabaseTable = "CHP_DATABASE_TABLE"
)

// Config holds every value chproxy needs at startup, built once by
// NewConfig().Parse(). main copies the fields each component needs
// into router.New, proxy.Options and api.New; none of them holds the
// Config itself. There is no package-level mutable state besides the
// Store itself.
type Config struct {
	Flags *flag.FlagSet

	// data plane listen address
	IP   string
	Port int

	// management API listen address
	APIIP   string
	APIPort int

	DefaultTarget string
	ErrorTarget   string
	ErrorPath     string

	NoPrependPath   bool
	NoIncludePrefix bool
	NoXForward      bool
	ChangeOrigin    bool

	Timeout      time.Duration
	ProxyTimeout time.Duration

	CustomHeaders customHeaderFlags

	StorageBackend string

	LogLevel string
	PIDFile  string

	// AllowMetadataOnlyUpdates resolves the open question on
	// target-less PUT/POST: without it, a body with no "target"
	// is rejected with 400 instead of silently guessed at.
	AllowMetadataOnlyUpdates bool

	// RedirectPort is accepted for compatibility and otherwise unused.
	RedirectPort int

	// AuthToken comes from CONFIGPROXY_AUTH_TOKEN; if unset at Parse
	// time, a random token is generated and logged once.
	AuthToken string

	// DatabaseURL / DatabaseTable come from CHP_DATABASE_URL /
	// CHP_DATABASE_TABLE and configure the sql storage backend.
	DatabaseURL   string
	DatabaseTable string
}

// NewConfig returns a Config with its flag.FlagSet wired up but not yet
// parsed; call Parse or ParseArgs next.
func NewConfig() *Config {
	cfg := new(Config)

	flags := flag.NewFlagSet("", flag.ExitOnError)
	flags.StringVar(&cfg.IP, "ip", defaultListenIP, "IP the proxy listens on")
	flags.IntVar(&cfg.Port, "port", defaultListenPort, "port the proxy listens on")
	flags.StringVar(&cfg.APIIP, "api-ip", defaultAPIListenIP, "IP the management API listens on")
	flags.IntVar(&cfg.APIPort, "api-port", defaultAPIPort, "port the management API listens on")
	flags.StringVar(&cfg.DefaultTarget, "default-target", "", "if set, the route registered for prefix '/' when no other route matches")
	flags.StringVar(&cfg.ErrorTarget, "error-target", "", "origin that serves custom error pages, see the error handler precedence")
	flags.StringVar(&cfg.ErrorPath, "error-path", "", "directory containing <code>.html/error.html error pages")
	flags.BoolVar(&cfg.NoPrependPath, "no-prepend-path", false, "disable prepending the target's own path to the forwarded suffix")
	flags.BoolVar(&cfg.NoIncludePrefix, "no-include-prefix", false, "disable including the matched prefix in the forwarded suffix")
	flags.BoolVar(&cfg.NoXForward, "no-x-forward", false, "disable setting the X-Forwarded-* header family")
	flags.BoolVar(&cfg.ChangeOrigin, "change-origin", false, "rewrite the Host header to the upstream authority instead of preserving the client's")
	flags.DurationVar(&cfg.Timeout, "timeout", 0, "time allowed from accepting a request to the first upstream response byte")
	flags.DurationVar(&cfg.ProxyTimeout, "proxy-timeout", 0, "idle time allowed once streaming has begun, in either direction")
	flags.Var(&cfg.CustomHeaders, "custom-header", "NAME:VALUE header added to every forwarded request; may be repeated")
	flags.StringVar(&cfg.StorageBackend, "storage-backend", "memory", "routing table backend: memory, sql, or redis")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "logrus level: debug, info, warn, error")
	flags.StringVar(&cfg.PIDFile, "pid-file", "", "if set, the running process writes its PID to this path on startup")
	flags.BoolVar(&cfg.AllowMetadataOnlyUpdates, "allow-metadata-only-updates", false, "allow POST/PUT bodies without a 'target' field to merge metadata into an existing route")
	flags.IntVar(&cfg.RedirectPort, "redirect-port", 0, "accepted for compatibility; redirect-to-HTTPS is not implemented")

	cfg.Flags = flags
	return cfg
}

// Parse parses os.Args[1:] into c and resolves environment-sourced
// fields (CONFIGPROXY_AUTH_TOKEN, CHP_DATABASE_URL, CHP_DATABASE_TABLE).
func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[0], os.Args[1:])
}

// ParseArgs parses args into c, as Parse does, but accepts an explicit
// argv for testability.
func (c *Config) ParseArgs(progname string, args []string) error {
	c.Flags.Init(progname, flag.ExitOnError)
	if err := c.Flags.Parse(args); err != nil {
		return err
	}
	if len(c.Flags.Args()) != 0 {
		return fmt.Errorf("config: invalid arguments: %v", c.Flags.Args())
	}

	c.DatabaseURL = os.Getenv(envDatabaseURL)
	c.DatabaseTable = os.Getenv(envDatabaseTable)

	c.AuthToken = os.Getenv(envAuthToken)
	if c.AuthToken == "" {
		token, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("config: failed to generate auth token: %w", err)
		}
		c.AuthToken = token.String()
		log.Warnf("config: %s not set, generated a random token for this run: %s", envAuthToken, c.AuthToken)
	}

	return nil
}
