package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	AuthRateLimit AuthRateLimitConfig
	Password      PasswordConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	GCS           GCSConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	SMTP          SMTPConfig
	Renderer      RendererConfig
	Company       CompanyConfig
	Pipeline      PipelineConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.App.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDB reads only the App and DB sections, for tools such as the migrator
// that must not require pipeline credentials.
func LoadDB() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg.App); err != nil {
		return nil, fmt.Errorf("parsing app config: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg.DB); err != nil {
		return nil, fmt.Errorf("parsing db config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"SERVICEREPORT_APP_ENV" required:"true"`
	Port         string   `envconfig:"SERVICEREPORT_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"SERVICEREPORT_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"SERVICEREPORT_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"SERVICEREPORT_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool     `envconfig:"SERVICEREPORT_AUTO_MIGRATE" default:"false"`
	TimeZone     string   `envconfig:"SERVICEREPORT_TIME_ZONE" default:"Asia/Singapore"`
	MetricsPort  string   `envconfig:"SERVICEREPORT_METRICS_PORT" default:"9090"`
	CORSOrigins  []string `envconfig:"SERVICEREPORT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// Location resolves the configured IANA zone used for report numbers and rendered dates.
func (a AppConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(a.TimeZone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", name, err)
	}
	return loc, nil
}

type DBConfig struct {
	DSN    string `envconfig:"SERVICEREPORT_DB_DSN"`
	Driver string `envconfig:"SERVICEREPORT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SERVICEREPORT_DB_HOST"`
	Port     int    `envconfig:"SERVICEREPORT_DB_PORT" default:"5432"`
	User     string `envconfig:"SERVICEREPORT_DB_USER"`
	Password string `envconfig:"SERVICEREPORT_DB_PASSWORD"`
	Name     string `envconfig:"SERVICEREPORT_DB_NAME"`
	SSLMode  string `envconfig:"SERVICEREPORT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SERVICEREPORT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SERVICEREPORT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SERVICEREPORT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SERVICEREPORT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SERVICEREPORT_REDIS_URL"`
	Address      string        `envconfig:"SERVICEREPORT_REDIS_ADDR"`
	Password     string        `envconfig:"SERVICEREPORT_REDIS_PASSWORD"`
	DB           int           `envconfig:"SERVICEREPORT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SERVICEREPORT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SERVICEREPORT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SERVICEREPORT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SERVICEREPORT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SERVICEREPORT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SERVICEREPORT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SERVICEREPORT_JWT_ISSUER" default:"servicereport"`
	ExpirationMinutes int    `envconfig:"SERVICEREPORT_JWT_EXPIRATION_MINUTES" default:"60"`
	SessionTTLMinutes int    `envconfig:"SERVICEREPORT_SESSION_TTL_MINUTES" default:"720"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"SERVICEREPORT_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"SERVICEREPORT_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"SERVICEREPORT_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

// SessionTTL returns how long a login session stays valid in Redis.
func (j JWTConfig) SessionTTL() time.Duration {
	if j.SessionTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.SessionTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	MinLength        int `envconfig:"SERVICEREPORT_PASSWORD_MIN_LENGTH" default:"6"`
	ArgonMemoryKB    int `envconfig:"SERVICEREPORT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SERVICEREPORT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SERVICEREPORT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SERVICEREPORT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SERVICEREPORT_ARGON_KEY_LEN" default:"32"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"SERVICEREPORT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SERVICEREPORT_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"SERVICEREPORT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SERVICEREPORT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"SERVICEREPORT_GCS_BUCKET_NAME" required:"true"`
	ReportsDir string `envconfig:"SERVICEREPORT_GCS_REPORTS_DIR" default:"service_reports"`
}

type PubSubConfig struct {
	ReportsTopic        string `envconfig:"SERVICEREPORT_PUBSUB_REPORTS_TOPIC" default:"service-report-events"`
	ReportsSubscription string `envconfig:"SERVICEREPORT_PUBSUB_REPORTS_SUBSCRIPTION" default:"service-report-completion"`
	// MaxOutstandingMessages caps in-flight deliveries, and with them concurrent Chromium sessions.
	MaxOutstandingMessages int `envconfig:"SERVICEREPORT_PUBSUB_MAX_OUTSTANDING_MESSAGES" default:"2"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SERVICEREPORT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SERVICEREPORT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SERVICEREPORT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// SMTPConfig carries the relay credentials. Username and Password are secrets and must never be logged.
type SMTPConfig struct {
	Host       string        `envconfig:"SERVICEREPORT_SMTP_HOST" default:"smtp.gmail.com"`
	Port       int           `envconfig:"SERVICEREPORT_SMTP_PORT" default:"587"`
	Username   string        `envconfig:"SERVICEREPORT_SMTP_USERNAME" required:"true"`
	Password   string        `envconfig:"SERVICEREPORT_SMTP_PASSWORD" required:"true"`
	From       string        `envconfig:"SERVICEREPORT_SMTP_FROM"`
	OpsMailbox string        `envconfig:"SERVICEREPORT_OPS_MAILBOX" required:"true"`
	Timeout    time.Duration `envconfig:"SERVICEREPORT_SMTP_TIMEOUT" default:"30s"`
}

// Sender returns the From address, defaulting to the authenticated account.
func (s SMTPConfig) Sender() string {
	if from := strings.TrimSpace(s.From); from != "" {
		return from
	}
	return strings.TrimSpace(s.Username)
}

type RendererConfig struct {
	ChromiumBin string  `envconfig:"SERVICEREPORT_CHROMIUM_BIN"`
	Scale       float64 `envconfig:"SERVICEREPORT_PDF_SCALE" default:"0.98"`
	MarginMM    float64 `envconfig:"SERVICEREPORT_PDF_MARGIN_MM" default:"10"`
}

type CompanyConfig struct {
	Name    string `envconfig:"SERVICEREPORT_COMPANY_NAME" default:"Hilife Interactive Pte. Ltd."`
	Address string `envconfig:"SERVICEREPORT_COMPANY_ADDRESS" default:"33 Ubi Avenue 3 #08-18 Vertex Tower B Singapore 408868"`
	Tel     string `envconfig:"SERVICEREPORT_COMPANY_TEL" default:"(65) 62830326"`
	Email   string `envconfig:"SERVICEREPORT_COMPANY_EMAIL" default:"cs@hilife.sg"`
	LogoURL string `envconfig:"SERVICEREPORT_COMPANY_LOGO_URL" default:"https://www.hilife.sg/images/logo.png"`
}

type PipelineConfig struct {
	Timeout  time.Duration `envconfig:"SERVICEREPORT_PIPELINE_TIMEOUT" default:"540s"`
	ClaimTTL time.Duration `envconfig:"SERVICEREPORT_PIPELINE_CLAIM_TTL" default:"10m"`
}

type CronConfig struct {
	Interval                time.Duration `envconfig:"SERVICEREPORT_CRON_INTERVAL" default:"15m"`
	ReconcileBatchSize      int           `envconfig:"SERVICEREPORT_RECONCILE_BATCH_SIZE" default:"50"`
	ReconcileMaxAttempts    int           `envconfig:"SERVICEREPORT_RECONCILE_MAX_ATTEMPTS" default:"5"`
	OutboxRetentionDays     int           `envconfig:"SERVICEREPORT_OUTBOX_RETENTION_DAYS" default:"30"`
	OutboxRetentionAttempts int           `envconfig:"SERVICEREPORT_OUTBOX_RETENTION_MIN_ATTEMPTS" default:"5"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
