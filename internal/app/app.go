package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Mahaseias/sendzap/internal/app/config"
	apphttp "github.com/Mahaseias/sendzap/internal/app/http"
	"github.com/Mahaseias/sendzap/internal/app/http/handlers"
	"github.com/Mahaseias/sendzap/internal/app/metrics"
	"github.com/Mahaseias/sendzap/internal/domain/catalog"
	"github.com/Mahaseias/sendzap/internal/domain/proposal/dispatch"
	"github.com/Mahaseias/sendzap/internal/domain/quote/pdf/gofpdf"
	"github.com/Mahaseias/sendzap/internal/domain/seller"
	"github.com/Mahaseias/sendzap/internal/domain/wizard"
	"github.com/Mahaseias/sendzap/internal/infra/db/dynamo"
	"github.com/Mahaseias/sendzap/internal/infra/db/memory"
	"github.com/Mahaseias/sendzap/internal/infra/db/postgres"
	"github.com/Mahaseias/sendzap/internal/infra/db/sqlite"
	"github.com/Mahaseias/sendzap/internal/infra/mail/resend"
)

// App is the wired service: session backend, wizard, proposal pipeline and
// the HTTP handler on top of them.
type App struct {
	Handler http.Handler
	Store   wizard.Store

	closers []func()
}

type backend struct {
	store   wizard.Store
	log     dispatch.Log
	ready   func(ctx context.Context) error
	closers []func()
}

func openBackend(ctx context.Context, cfg config.Config) (backend, error) {
	switch cfg.SessionBackend {
	case config.BackendMemory:
		st := memory.New(cfg.SessionTTL)
		return backend{store: st, log: st}, nil

	case config.BackendPostgres:
		db, err := postgres.New(ctx, cfg.DatabaseURL, cfg.PostgresMaxConns)
		if err != nil {
			return backend{}, fmt.Errorf("postgres: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return backend{}, err
		}
		return backend{
			store:   postgres.NewSessionStore(db, cfg.SessionTTL),
			log:     postgres.NewProposalLog(db),
			ready:   db.Pool.Ping,
			closers: []func(){db.Close},
		}, nil

	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return backend{}, fmt.Errorf("sqlite: %w", err)
		}
		return backend{
			store:   sqlite.NewSessionStore(db, cfg.SessionTTL),
			log:     sqlite.NewProposalLog(db),
			ready:   db.PingContext,
			closers: []func(){func() { db.Close() }},
		}, nil

	case config.BackendDynamoDB:
		client, err := dynamo.NewClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return backend{}, err
		}
		if err := dynamo.EnsureTable(ctx, client, cfg.DynamoDBTable); err != nil {
			return backend{}, err
		}
		return backend{
			store: dynamo.NewSessionStore(client, cfg.DynamoDBTable, cfg.SessionTTL),
			ready: func(ctx context.Context) error { return dynamo.Ping(ctx, client, cfg.DynamoDBTable) },
		}, nil
	}
	return backend{}, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(path)
}

func loadSellers(path string) (*seller.Directory, error) {
	if path == "" {
		return seller.NewDirectory(nil), nil
	}
	return seller.Load(path)
}

// New wires everything from cfg. Close releases the backend.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	cat, err := loadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}
	sellers, err := loadSellers(cfg.SellersFile)
	if err != nil {
		return nil, err
	}
	mailer, err := resend.New(cfg.ResendAPIKey, cfg.MailFrom, cfg.ResendBaseURL, cfg.OutboundTimeout)
	if err != nil {
		return nil, err
	}
	if !mailer.Configured() {
		log.Printf("mail: RESEND_API_KEY or MAIL_FROM not set, proposals run dry")
	}
	if !cfg.WhatsAppConfigured() {
		log.Printf("whatsapp: TWILIO_AUTH_TOKEN not set, webhook refuses posts")
	}

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	dispatcher := &dispatch.Dispatcher{
		Catalog:     cat,
		Rules:       cfg.Rules,
		CompanyName: cfg.CompanyName,
		Sellers:     sellers,
		Renderer:    gofpdf.New(),
		Mailer:      mailer,
		Log:         be.log,
		Observer:    rec,
		Timeout:     cfg.OutboundTimeout,
	}
	machine := wizard.NewMachine(cat, cfg.Rules, cfg.Wizard)
	svc := wizard.NewService(be.store, machine, dispatcher, rec)

	var lister dispatch.Lister
	if l, ok := be.log.(dispatch.Lister); ok {
		lister = l
	}
	h := handlers.New(cfg, svc, dispatcher, lister)
	h.Ready = be.ready

	log.Printf("app: wired backend=%s catalog=%d sellers=%d mode=%s", cfg.SessionBackend, cat.Len(), sellers.Len(), cfg.Wizard.Mode)
	return &App{
		Handler: apphttp.NewRouter(cfg, h, rec.Handler()),
		Store:   be.store,
		closers: be.closers,
	}, nil
}

func (a *App) Close() {
	for _, c := range a.closers {
		c()
	}
}

// Sweep removes expired sessions every interval until ctx ends. Stores
// without a Sweeper rely on expiry at read time alone.
func (a *App) Sweep(ctx context.Context, interval time.Duration) {
	sw, ok := a.Store.(wizard.Sweeper)
	if !ok || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := sw.Sweep(ctx)
			if err != nil {
				log.Printf("sessions: sweep failed err=%v", err)
				continue
			}
			if n > 0 {
				log.Printf("sessions: swept expired=%d", n)
			}
		}
	}
}

func Run() {
	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg)
	if err != nil {
		log.Fatalf("app: %v", err)
	}
	defer a.Close()

	go a.Sweep(ctx, cfg.SessionSweepInterval)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http: shutdown err=%v", err)
		}
	}()

	log.Printf("listening on %s", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	log.Printf("http: stopped")
}
