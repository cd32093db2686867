package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/commerce-core/internal/bootstrap"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	"github.com/angelmondragon/commerce-core/pkg/metrics"
	"github.com/angelmondragon/commerce-core/pkg/outbox"
	"github.com/angelmondragon/commerce-core/pkg/outbox/registry"
	"github.com/angelmondragon/commerce-core/pkg/pagination"
)

type flags struct {
	replay  string
	listDLQ bool
	reason  string
	cursor  string
}

func main() {
	var f flags
	flag.StringVar(&f.replay, "replay", "", "requeue a dead-lettered event id and exit")
	flag.BoolVar(&f.listDLQ, "list-dlq", false, "print one page of dead letters and exit")
	flag.StringVar(&f.reason, "reason", "", "only list dead letters with this reason")
	flag.StringVar(&f.cursor, "cursor", "", "continue a previous -list-dlq page")
	flag.Parse()

	rt, err := bootstrap.Start(context.Background(), "outbox-publisher")
	if err != nil {
		os.Exit(1)
	}
	if err := run(rt, f); err != nil {
		rt.Close()
		os.Exit(1)
	}
	rt.Close()
}

func run(rt *bootstrap.Runtime, f flags) error {
	logg := rt.Logger
	dlq := outbox.NewDLQRepository(rt.DB.DB())

	if f.replay != "" || f.listDLQ {
		err := runDLQCommand(context.Background(), rt, dlq, f)
		if err != nil {
			logg.Error(context.Background(), "dead letter command failed", err)
		}
		return err
	}

	pubsubClient, err := rt.PubSub(context.Background())
	if err != nil {
		return err
	}
	eventRegistry, err := registry.NewEventRegistry(rt.Config.PubSub)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		return err
	}
	service, err := NewService(ServiceParams{
		Config:        rt.Config,
		Logger:        logg,
		DB:            rt.DB,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(rt.DB.DB()),
		Registry:      eventRegistry,
		DLQRepository: dlq,
		Metrics:       metrics.NewCommerceMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "topic_count", len(eventRegistry.Topics()))
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		return err
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
	return nil
}

func runDLQCommand(ctx context.Context, rt *bootstrap.Runtime, dlq *outbox.DLQRepository, f flags) error {
	if f.listDLQ {
		if err := printDeadLetters(ctx, dlq, f.reason, f.cursor); err != nil {
			return err
		}
	}
	if f.replay == "" {
		return nil
	}
	eventID, err := uuid.Parse(f.replay)
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", f.replay, err)
	}
	if err := rt.DB.WithTx(ctx, func(tx *gorm.DB) error {
		return dlq.Requeue(ctx, tx, eventID)
	}); err != nil {
		return err
	}
	fmt.Println("requeued", eventID)
	return nil
}

func printDeadLetters(ctx context.Context, dlq *outbox.DLQRepository, rawReason, cursor string) error {
	var reason *enums.OutboxDLQErrorReason
	if rawReason != "" {
		parsed, err := enums.ParseOutboxDLQErrorReason(rawReason)
		if err != nil {
			return err
		}
		reason = &parsed
	}
	page, err := dlq.List(ctx, reason, pagination.Params{Limit: 50, Cursor: cursor})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tTYPE\tREASON\tFAILED AT\tERROR")
	for _, row := range page.Items {
		msg := ""
		if row.ErrorMessage != nil {
			msg = *row.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", row.EventID, row.EventType, row.ErrorReason, row.FailedAt.Format(time.RFC3339), msg)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if page.NextCursor != "" {
		fmt.Println("next page: -cursor", page.NextCursor)
	}
	return nil
}
