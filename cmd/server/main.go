package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/lynsa/outreach-backend/internal/api"
	"github.com/lynsa/outreach-backend/internal/config"
	"github.com/lynsa/outreach-backend/internal/db"
	"github.com/lynsa/outreach-backend/internal/logging"
	"github.com/lynsa/outreach-backend/internal/mailer"
	"github.com/lynsa/outreach-backend/internal/notify"
	"github.com/lynsa/outreach-backend/internal/poller"
	"github.com/lynsa/outreach-backend/internal/store"
	"github.com/lynsa/outreach-backend/internal/vault"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		logging.Log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		logging.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseConnection(pool)

	logging.Log.Info("Successfully connected to database")

	st := store.New(pool, cfg.SnapshotPath, cfg.Domain)
	if err := st.LoadFromDisk(); err != nil {
		logging.Log.Warnf("Failed to load status snapshot, starting cold: %v", err)
	}
	go st.RunSnapshotLoop(ctx, cfg.SnapshotInterval)

	attachmentVault := vault.NewPostgres(pool)

	sender := &mailer.SMTPSender{
		Addr:     cfg.SMTPServer,
		Username: cfg.MailUser,
		Password: cfg.MailPassword,
		UseTLS:   cfg.SMTPUseTLS,
	}
	messenger := mailer.NewMessenger(st, attachmentVault, sender, cfg.Domain, cfg.FromAddress(), cfg.MaxAttachmentBytes)

	hub := notify.NewHub(10)

	dial := poller.Dialer(cfg.IMAPServer, cfg.MailUser, cfg.MailPassword, cfg.IMAPMailbox, cfg.IMAPUseTLS)
	replyPoller := poller.New(st, attachmentVault, hub, dial, cfg.PollInterval, "<"+cfg.MailboxAddress+">")
	go replyPoller.Run(ctx)

	router := api.NewRouter(st, messenger, attachmentVault, hub, nil)

	address := ":" + cfg.Port
	logging.Log.Infof("Outreach backend starting on %s (environment: %s)", address, cfg.Environment)

	srv := &http.Server{
		Addr:    address,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Log.Fatalf("Server failed: %v", err)
	}
}
