package commands

import (
	"github.com/alecthomas/kingpin/v2"

	"github.com/devops-promotions/promotions/internal/config"
)

// CLI holds the kingpin application and the flags it parses.
type CLI struct {
	app *kingpin.Application

	configFile     *string
	envFile        *string
	port           *string
	databaseURI    *string
	logFacility    *string
	logLevel       *string
	rateLimitRPS   *float64
	rateLimitBurst *int
}

// NewCLI declares the global flags and the serve and db-create commands.
func NewCLI(name, help string) *CLI {
	app := kingpin.New(name, help)
	c := &CLI{
		app:            app,
		configFile:     app.Flag("config", "Path to YAML configuration file").String(),
		envFile:        app.Flag("env-file", "Path to a .env file (defaults to ./.env when present)").String(),
		port:           app.Flag("port", "HTTP port exposed by the service").String(),
		databaseURI:    app.Flag("database-uri", "Database URI (postgres://, sqlite://, memory://)").String(),
		logFacility:    app.Flag("log-facility", "Name of the production log facility").String(),
		logLevel:       app.Flag("log-level", "Minimum log level").String(),
		rateLimitRPS:   app.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64(),
		rateLimitBurst: app.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int(),
	}

	app.Command(Serve, "Run the promotions HTTP service").Default()
	app.Command(DBCreate, "Drop and recreate the database tables")

	return c
}

// Parse parses args and returns the selected command.
func (c *CLI) Parse(args []string) (string, error) {
	return c.app.Parse(args)
}

// Overrides converts the parsed flags into configuration overrides. Only
// flags that were set are carried over.
func (c *CLI) Overrides() *config.CLIOverrides {
	overrides := &config.CLIOverrides{
		ConfigFile: *c.configFile,
		EnvFile:    *c.envFile,
	}

	if *c.port != "" {
		overrides.Port = c.port
	}
	if *c.databaseURI != "" {
		overrides.DatabaseURI = c.databaseURI
	}
	if *c.logFacility != "" {
		overrides.LogFacility = c.logFacility
	}
	if *c.logLevel != "" {
		overrides.LogLevel = c.logLevel
	}
	if *c.rateLimitRPS >= 0 {
		overrides.RateLimitRPS = c.rateLimitRPS
	}
	if *c.rateLimitBurst >= 0 {
		overrides.RateLimitBurst = c.rateLimitBurst
	}

	return overrides
}
