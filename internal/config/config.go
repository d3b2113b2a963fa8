package config // package config loads application configuration from environment variables

import (
	"log" // log is used to report configuration errors and halt execution
	"os"  // os provides access to environment variables
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Database connection values are only required
// for the driver that is selected by DB_DRIVER.
type Config struct {
	Env            string         // application environment (e.g. "dev", "prod")
	Port           string         // HTTP port to listen on
	DBDriver       string         // "mysql" (default) or "sqlite3"
	DBUser         string         // database username
	DBPass         string         // database password (optional)
	DBHost         string         // database host address
	DBPort         string         // database port number
	DBName         string         // database name
	DBPath         string         // SQLite database file
	AutoMigrate    bool           // create tables at startup
	JWTSecret      string         // secret used to sign JWTs
	AccessTTLMin   int            // access token time‑to‑live in minutes
	RefreshTTLDays int            // refresh token time‑to‑live in days
	BcryptCost     int            // bcrypt cost for password hashing
	Location       *time.Location // time zone in which "today" and slot times are interpreted
	WindowDays     int            // number of bookable days starting today
	UploadDir      string         // directory that stores uploaded images
	UploadMaxBytes int64          // maximum accepted upload size
	AdminName      string         // bootstrap administrator name
	AdminEmail     string         // bootstrap administrator email (optional)
	AdminPassword  string         // bootstrap administrator password
	SweepInterval  time.Duration  // how often confirmed bookings are checked for completion
	AMQPURL        string         // RabbitMQ URL; empty disables event publishing
	QueueName      string         // queue that receives reservation events
	EventLogDir    string         // directory the event consumer writes to
	Logging        LoggingConfig
}

// LoggingConfig controls the zerolog logger.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	App    string // value of the "app" field on every line
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	cfg := Config{
		Env:            envStr("APP_ENV", "dev"),
		Port:           must("APP_PORT"),
		DBDriver:       envStr("DB_DRIVER", "mysql"),
		DBPass:         os.Getenv("DB_PASS"), // empty allowed
		AutoMigrate:    envBool("DB_AUTO_MIGRATE", true),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 7),
		BcryptCost:     envInt("BCRYPT_COST", 10),
		Location:       mustLocation(envStr("APP_TIMEZONE", "Asia/Jakarta")),
		WindowDays:     envInt("SCHEDULE_WINDOW_DAYS", 28),
		UploadDir:      envStr("UPLOAD_DIR", "uploads"),
		UploadMaxBytes: int64(envInt("UPLOAD_MAX_BYTES", 5<<20)),
		AdminName:      envStr("ADMIN_NAME", "Administrator"),
		AdminEmail:     os.Getenv("ADMIN_EMAIL"),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
		SweepInterval:  envDur("COMPLETION_SWEEP_INTERVAL", 10*time.Minute),
		AMQPURL:        os.Getenv("AMQP_URL"),
		QueueName:      envStr("QUEUE_NAME", "reservation_events"),
		EventLogDir:    envStr("EVENT_LOG_DIR", "logs"),
		Logging: LoggingConfig{
			Level:  envStr("LOG_LEVEL", "info"),
			Format: envStr("LOG_FORMAT", "json"),
			App:    envStr("APP_NAME", "field-reservation"),
		},
	}
	switch cfg.DBDriver {
	case "mysql":
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	case "sqlite", "sqlite3":
		cfg.DBDriver = "sqlite3"
		cfg.DBPath = envStr("DB_PATH", "field_reservation.db")
	default:
		log.Fatalf("unsupported DB_DRIVER: %q", cfg.DBDriver)
	}
	if cfg.AdminEmail != "" && cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}
	if cfg.WindowDays < 1 {
		cfg.WindowDays = 28
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Fatalf("invalid APP_TIMEZONE %q: %v", name, err)
	}
	return loc
}
