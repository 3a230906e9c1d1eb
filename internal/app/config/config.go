package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mahaseias/sendzap/internal/domain/quote"
	"github.com/Mahaseias/sendzap/internal/domain/wizard"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

type Config struct {
	HTTPAddr      string
	InternalToken string
	CompanyName   string

	ResendAPIKey  string
	MailFrom      string
	ResendBaseURL string

	SessionBackend   string
	DatabaseURL      string
	PostgresMaxConns int
	SQLitePath       string
	DynamoDBTable    string
	DynamoDBEndpoint string
	AWSRegion        string

	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	OutboundTimeout      time.Duration

	Rules  quote.Rules
	Wizard wizard.Config

	CatalogFile string
	SellersFile string

	// PublicBaseURL is the scheme and host Twilio posts to, used to rebuild
	// the signed URL behind a proxy. Empty means derive it from the request.
	PublicBaseURL   string
	TwilioAuthToken string

	TelegramBotToken      string
	TelegramBaseURL       string
	TelegramWebhookSecret string
}

// Load reads the environment. Malformed values and missing required keys are
// returned together; absent mail credentials are not an error (dry run).
func Load() (Config, error) {
	p := &parser{}
	cfg := Config{
		HTTPAddr:      env("HTTP_ADDR", ":8080"),
		InternalToken: p.required("INTERNAL_TOKEN"),
		CompanyName:   env("COMPANY_NAME", "Casa Conectada Automação"),

		ResendAPIKey:  env("RESEND_API_KEY", ""),
		MailFrom:      env("MAIL_FROM", ""),
		ResendBaseURL: env("RESEND_BASE_URL", "https://api.resend.com"),

		SessionBackend:   strings.ToLower(env("SESSION_BACKEND", BackendMemory)),
		DatabaseURL:      env("DATABASE_URL", ""),
		PostgresMaxConns: p.integer("PG_MAX_CONNS", 25),
		SQLitePath:       env("SQLITE_PATH", "sendzap.db"),
		DynamoDBTable:    env("DYNAMODB_TABLE", "sendzap_sessions"),
		DynamoDBEndpoint: env("DYNAMODB_ENDPOINT", ""),
		AWSRegion:        env("AWS_REGION", "us-east-1"),

		SessionTTL:           p.duration("SESSION_TTL", wizard.DefaultTTL),
		SessionSweepInterval: p.duration("SESSION_SWEEP_INTERVAL", 0),
		OutboundTimeout:      p.duration("OUTBOUND_TIMEOUT", 30*time.Second),

		Rules: quote.Rules{
			LaborRate:        p.rate("LABOR_RATE", "0.40"),
			CashDiscountRate: p.rate("CASH_DISCOUNT_RATE", "0.10"),
			Installments:     p.integer("INSTALLMENTS", 3),
		},
		Wizard: wizard.Config{
			AskPhone: p.flag("WIZARD_ASK_PHONE", true),
			AskNotes: p.flag("WIZARD_ASK_NOTES", true),
		},

		CatalogFile: env("CATALOG_FILE", ""),
		SellersFile: env("SELLERS_FILE", ""),

		PublicBaseURL:   strings.TrimRight(env("PUBLIC_BASE_URL", ""), "/"),
		TwilioAuthToken: env("TWILIO_AUTH_TOKEN", ""),

		TelegramBotToken:      env("TELEGRAM_BOT_TOKEN", ""),
		TelegramBaseURL:       env("TELEGRAM_BASE_URL", "https://api.telegram.org"),
		TelegramWebhookSecret: env("TELEGRAM_WEBHOOK_SECRET", ""),
	}

	mode, err := wizard.ParseMode(env("WIZARD_MODE", string(wizard.ModeMulti)))
	p.add("WIZARD_MODE", err)
	cfg.Wizard.Mode = mode

	p.add("LABOR_RATE/CASH_DISCOUNT_RATE/INSTALLMENTS", cfg.Rules.Validate())

	switch cfg.SessionBackend {
	case BackendMemory, BackendSQLite, BackendDynamoDB:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			p.add("DATABASE_URL", errors.New("required when SESSION_BACKEND=postgres"))
		}
	default:
		p.add("SESSION_BACKEND", fmt.Errorf("unknown backend %q", cfg.SessionBackend))
	}
	if cfg.SessionTTL < 0 || cfg.SessionSweepInterval < 0 {
		p.add("SESSION_TTL/SESSION_SWEEP_INTERVAL", errors.New("must not be negative"))
	}
	if cfg.OutboundTimeout <= 0 {
		p.add("OUTBOUND_TIMEOUT", errors.New("must be positive"))
	}

	if cfg.PostgresMaxConns < 1 {
		p.add("PG_MAX_CONNS", errors.New("must be at least 1"))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramWebhookSecret == "" {
		p.add("TELEGRAM_WEBHOOK_SECRET", errors.New("required when TELEGRAM_BOT_TOKEN is set"))
	}
	if cfg.PublicBaseURL != "" {
		if u, err := url.Parse(cfg.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			p.add("PUBLIC_BASE_URL", fmt.Errorf("want scheme://host, got %q", cfg.PublicBaseURL))
		}
	}

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// WhatsAppConfigured reports whether inbound Twilio posts can be verified.
func (c Config) WhatsAppConfigured() bool { return c.TwilioAuthToken != "" }

// MailConfigured reports whether proposals are really e-mailed.
func (c Config) MailConfigured() bool {
	return c.ResendAPIKey != "" && c.MailFrom != ""
}

func env(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

type parser struct {
	errs []error
}

func (p *parser) add(k string, err error) {
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", k, err))
	}
}

func (p *parser) required(k string) string {
	v := env(k, "")
	if v == "" {
		p.add(k, errors.New("missing"))
	}
	return v
}

func (p *parser) duration(k string, def time.Duration) time.Duration {
	v := env(k, "")
	if v == "" {
		return def
	}
	if v == "0" {
		return 0
	}
	d, err := time.ParseDuration(v)
	p.add(k, err)
	return d
}

func (p *parser) rate(k, def string) decimal.Decimal {
	d, err := decimal.NewFromString(env(k, def))
	p.add(k, err)
	return d
}

func (p *parser) integer(k string, def int) int {
	v := env(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	p.add(k, err)
	return n
}

func (p *parser) flag(k string, def bool) bool {
	v := env(k, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	p.add(k, err)
	return b
}
