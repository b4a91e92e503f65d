package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tompro/payday/command"
	"github.com/tompro/payday/config"
	"github.com/tompro/payday/cqrs"
	"github.com/tompro/payday/domain/aggregate"
	"github.com/tompro/payday/domain/event"
	domainRepository "github.com/tompro/payday/domain/repository"
	"github.com/tompro/payday/httpapi"
	"github.com/tompro/payday/infra/nats"
	"github.com/tompro/payday/infra/postgres"
	"github.com/tompro/payday/node"
	"github.com/tompro/payday/outbox"
	"github.com/tompro/payday/query/projection"
	"github.com/tompro/payday/query/query"
	viewRepository "github.com/tompro/payday/query/repository"
	"github.com/tompro/payday/reconcile"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the payment backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")
	return cmd
}

func runServe(configPath string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Infrastructure
	db, err := postgres.NewDB(cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	slog.Info("Database connection established")

	if err := postgres.InitSchema(ctx, db); err != nil {
		return err
	}

	outboxStore := postgres.NewOutboxStore(db)
	eventStore := postgres.NewEventStore(db, outboxStore, cfg.EventStore.SnapshotFrequency)
	idempotencyStore := postgres.NewIdempotencyStore(db)
	offsetStore := postgres.NewOffsetStore(db)
	blockHeightStore := postgres.NewBlockHeightStore(db)
	observationStore := postgres.NewObservationStore(db)

	invoiceRepo := domainRepository.NewInvoiceRepository(eventStore)
	payoutRepo := domainRepository.NewPayoutRepository(eventStore)
	invoiceViewRepo := viewRepository.NewInvoiceViewRepository(db.Pool)
	payoutViewRepo := viewRepository.NewPayoutViewRepository(db.Pool)

	// Node backend. Real node drivers plug in here; the dev node simulates
	// one in process.
	ln := node.NewDevNode("dev-node")

	// Command side
	createInvoiceHandler := command.NewCreateInvoiceHandler(invoiceRepo, db, ln)
	settleInvoiceHandler := command.NewSettleInvoiceHandler(invoiceRepo, db)
	expireInvoiceHandler := command.NewExpireInvoiceHandler(invoiceRepo, db)
	cancelInvoiceHandler := command.NewCancelInvoiceHandler(invoiceRepo, db)
	sendPaymentHandler := command.NewSendPaymentHandler(payoutRepo, db, ln)
	resolvePayoutHandler := command.NewResolvePayoutHandler(payoutRepo, db)

	// Query side
	getInvoiceHandler := query.NewGetInvoiceByIDHandler(invoiceViewRepo)
	getPayoutHandler := query.NewGetPayoutByIDHandler(payoutViewRepo)

	// Projections
	invoiceProjection := cqrs.NewProjection(
		"InvoiceProjection",
		idempotencyStore,
		invoiceViewRepo,
		db,
		projection.NewInvoiceProjectionHandler(invoiceViewRepo).Handle,
	)
	payoutProjection := cqrs.NewProjection(
		"PayoutProjection",
		idempotencyStore,
		payoutViewRepo,
		db,
		projection.NewPayoutProjectionHandler(payoutViewRepo).Handle,
	)

	// Event distribution. With a broker configured, the outbox relays push
	// committed events to NATS and the projections consume them as durable
	// subscribers. Without one, the projections tail the event log directly
	// and the outbox is left undrained.
	if cfg.NATS.URL != "" {
		broker, err := nats.NewNATSBroker(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer broker.Close()
		slog.Info("NATS connection established")

		for range cfg.Outbox.Workers {
			relay := outbox.NewRelay(outboxStore, broker, event.TopicFor, cfg.Outbox.BatchSize, cfg.Outbox.Interval)
			relay.Start(ctx)
		}
		slog.Info("Outbox relays started", "workers", cfg.Outbox.Workers)

		if err := broker.Subscribe(ctx, event.InvoiceTopic, "InvoiceProjection", invoiceProjection.Handle); err != nil {
			return fmt.Errorf("failed to subscribe invoice projection: %w", err)
		}
		if err := broker.Subscribe(ctx, event.PayoutTopic, "PayoutProjection", payoutProjection.Handle); err != nil {
			return fmt.Errorf("failed to subscribe payout projection: %w", err)
		}
	} else {
		slog.Warn("No NATS URL configured; projections tail the event log directly")

		invoiceTailer := cqrs.NewTailer(
			"InvoiceProjection",
			eventStore,
			offsetStore,
			cqrs.TailInto(aggregate.InvoiceAggregateType, invoiceProjection.Handle),
			cfg.Outbox.BatchSize,
			cfg.Outbox.Interval,
		)
		invoiceTailer.Start(ctx)
		defer invoiceTailer.Stop()

		payoutTailer := cqrs.NewTailer(
			"PayoutProjection",
			eventStore,
			offsetStore,
			cqrs.TailInto(aggregate.PayoutAggregateType, payoutProjection.Handle),
			cfg.Outbox.BatchSize,
			cfg.Outbox.Interval,
		)
		payoutTailer.Start(ctx)
		defer payoutTailer.Stop()
	}

	// Reconciliation
	settlementReconciler := reconcile.NewSettlementReconciler(ln, invoiceViewRepo, settleInvoiceHandler, offsetStore, observationStore)
	if err := settlementReconciler.Start(ctx); err != nil {
		return err
	}
	defer settlementReconciler.Stop()

	onChainReconciler := reconcile.NewOnChainReconciler(ln, invoiceViewRepo, settleInvoiceHandler, blockHeightStore, observationStore)
	if err := onChainReconciler.Start(ctx); err != nil {
		return err
	}
	defer onChainReconciler.Stop()

	expirySweeper := reconcile.NewExpirySweeper(invoiceViewRepo, expireInvoiceHandler, cfg.Expiry.SweepInterval)
	expirySweeper.Start(ctx)
	defer expirySweeper.Stop()

	payoutResolver := reconcile.NewPayoutResolver(ln, payoutViewRepo, resolvePayoutHandler, observationStore)
	if err := payoutResolver.ResolveInFlight(ctx); err != nil {
		slog.Error("Failed to resolve unresolved payouts", "error", err)
	}

	// HTTP API
	server := httpapi.NewServer(
		cfg.HTTP.PSK,
		createInvoiceHandler,
		cancelInvoiceHandler,
		sendPaymentHandler,
		getInvoiceHandler,
		getPayoutHandler,
	)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API listening", "addr", cfg.HTTP.Addr)
		errCh <- server.Run(cfg.HTTP.Addr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
