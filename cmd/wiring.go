package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/user"

	"go.uber.org/zap"

	"leadbot/cli/internal/audit"
	"leadbot/cli/internal/auth"
	"leadbot/cli/internal/config"
	"leadbot/cli/internal/crm"
	"leadbot/cli/internal/engine"
	"leadbot/cli/internal/keychain"
	"leadbot/cli/internal/lifecycle"
	"leadbot/cli/internal/logging"
	"leadbot/cli/internal/metrics"
	"leadbot/cli/internal/oracle"
	"leadbot/cli/internal/parser"
	"leadbot/cli/internal/store"
)

// app is a fully wired command lifecycle.
type app struct {
	svc   *lifecycle.Service
	store *store.Store
	close func()
}

func newAuthService(cfg config.Config, secrets config.Secrets) (*auth.Service, error) {
	km, err := keychain.GetManager()
	if err != nil {
		return nil, fmt.Errorf("secure storage unavailable: %w", err)
	}
	return auth.NewService(auth.Config{
		ClientID:     cfg.CRM.ClientID,
		ClientSecret: secrets.ClientSecret,
		RedirectURI:  cfg.CRM.RedirectURI,
		Sandbox:      cfg.CRM.Sandbox(),
	}, km)
}

func newParser(ctx context.Context, cfg config.Config, secrets config.Secrets) (*parser.Parser, error) {
	key := secrets.OpenAIKey
	if cfg.Oracle.Provider == oracle.ProviderGemini {
		key = secrets.GeminiKey
	}
	o, err := oracle.New(ctx, oracle.Config{
		Provider: cfg.Oracle.Provider,
		APIKey:   key,
		Model:    cfg.Oracle.Model,
		BaseURL:  cfg.Oracle.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	return parser.New(o, parser.Config{
		Object:  cfg.CRM.Object,
		Timeout: cfg.Oracle.Timeout.Std(),
	}, logger.Named("parser")), nil
}

func newCRMClient(ctx context.Context, cfg config.Config, secrets config.Secrets) (*crm.Client, error) {
	authSvc, err := newAuthService(cfg, secrets)
	if err != nil {
		return nil, err
	}
	ts, sess, err := authSvc.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	instance := cfg.CRM.InstanceURL
	if instance == "" {
		instance = sess.InstanceURL
	}
	return crm.New(crm.Config{
		InstanceURL: instance,
		APIVersion:  cfg.CRM.APIVersion,
		Timeout:     cfg.CRM.Timeout.Std(),
		RateLimit:   cfg.CRM.RateLimit,
		Burst:       cfg.CRM.Burst,
	}, ts, logger.Named("crm"))
}

// auditDSN returns the configured audit DSN and where it came from.
func auditDSN(secrets config.Secrets) (dsn, source string) {
	if secrets.AuditDSN != "" {
		return secrets.AuditDSN, "LEADBOT_AUDIT_DSN"
	}
	km, err := keychain.GetManager()
	if err != nil {
		return "", ""
	}
	dsn, err = km.LoadAuditDSN()
	if err != nil {
		return "", ""
	}
	return dsn, "OS keychain"
}

// openAudit connects to the audit database when one is configured. An
// unreachable database is logged and replaced by a no-op recorder.
func openAudit(ctx context.Context, secrets config.Secrets) (audit.Recorder, func()) {
	dsn, _ := auditDSN(secrets)
	if dsn == "" {
		return audit.Nop{}, func() {}
	}
	st, err := audit.Open(ctx, dsn)
	if err != nil {
		logger.Warn("audit log disabled", logging.Error(err))
		return audit.Nop{}, func() {}
	}
	return st, st.Close
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	secrets, err := config.LoadSecrets()
	if err != nil {
		return nil, err
	}
	p, err := newParser(ctx, cfg, secrets)
	if err != nil {
		return nil, err
	}
	client, err := newCRMClient(ctx, cfg, secrets)
	if err != nil {
		return nil, err
	}
	st := store.New(store.Options{
		TTL:       cfg.Store.TTL.Std(),
		Retention: cfg.Store.Retention.Std(),
		OnChange:  metrics.SetStaged,
	})
	rec, closeAudit := openAudit(ctx, secrets)

	svc := lifecycle.New(lifecycle.Config{
		Parser:   p,
		Store:    st,
		Executor: engine.New(client, cfg.CRM.Timeout.Std(), logger.Named("engine")),
		Recorder: rec,
		Logger:   logger.Named("lifecycle"),
	})
	logger.Debug("lifecycle ready",
		zap.String("provider", cfg.Oracle.Provider),
		zap.String("object", cfg.CRM.Object),
		zap.Duration("ttl", st.TTL()))
	return &app{svc: svc, store: st, close: closeAudit}, nil
}

// localUserID identifies the terminal user to the lifecycle.
func localUserID() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return "cli:" + u.Username
	}
	return "cli:local"
}

func notLoggedIn(err error) bool {
	return errors.Is(err, auth.ErrNotLoggedIn)
}
