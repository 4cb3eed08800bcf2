// Команда reconcile разово сверяет кошельки с историей платежей и печатает отчёт.
//
//	reconcile -user <uuid>   один кошелёк
//	reconcile -all           все кошельки
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-wallet/internal/config"
	"github.com/ignatzorin/freelance-wallet/internal/db"
	"github.com/ignatzorin/freelance-wallet/internal/domain/valueobject"
	"github.com/ignatzorin/freelance-wallet/internal/ledger"
	"github.com/ignatzorin/freelance-wallet/internal/logger"
	"github.com/ignatzorin/freelance-wallet/internal/repository"
	"github.com/ignatzorin/freelance-wallet/internal/service"
)

func main() {
	userFlag := flag.String("user", "", "UUID пользователя для сверки")
	all := flag.Bool("all", false, "сверить все кошельки")
	health := flag.Bool("health", false, "вместо сверки показать состояние кошелька (только с -user)")
	flag.Parse()

	if (*userFlag == "") == !*all {
		fmt.Fprintln(os.Stderr, "укажите ровно один из флагов -user или -all")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("reconcile: ошибка загрузки конфигурации: %v", err)
	}
	logger.Init("warn")

	conn, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("reconcile: ошибка подключения к базе: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(ctx, conn, cfg.MigrationsPath); err != nil {
		log.Fatalf("reconcile: ошибка миграций: %v", err)
	}

	payments := repository.NewPaymentRepository(conn)
	engine := ledger.NewEngine(repository.NewWalletRepository(conn), cfg.Policy,
		ledger.WithRetry(cfg.CommitMaxAttempts, cfg.CommitBackoff),
		ledger.WithSyncNotify(),
	)
	wallet := service.NewWalletService(engine, payments)
	reconcile := service.NewReconciliationService(wallet, engine, payments, nil, cfg.ReconcileConcurrency)

	out := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer out.Flush()

	if *all {
		reports, err := reconcile.ReconcileAll(ctx)
		printReports(out, cfg.Currency, reports)
		if err != nil {
			out.Flush()
			log.Fatalf("reconcile: сверка прервана: %v", err)
		}
		return
	}

	userID, err := uuid.Parse(*userFlag)
	if err != nil {
		log.Fatalf("reconcile: невалидный UUID %q", *userFlag)
	}

	if *health {
		report, err := reconcile.Health(ctx, userID)
		if err != nil {
			log.Fatalf("reconcile: %v", err)
		}
		printHealth(out, cfg.Currency, report)
		return
	}

	report, err := reconcile.Reconcile(ctx, userID)
	if report != nil {
		printReports(out, cfg.Currency, []service.ReconcileReport{*report})
	}
	if err != nil {
		out.Flush()
		log.Fatalf("reconcile: %v", err)
	}
}

func printReports(w *tabwriter.Writer, currency string, reports []service.ReconcileReport) {
	fmt.Fprintln(w, "USER\tSTATUS\tBALANCE\tEXPECTED\tDRIFT\tCORRECTED\tERROR")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			r.UserID, r.Status,
			valueobject.FormatMinor(r.BalanceBefore)+" "+currency,
			valueobject.FormatMinor(r.ExpectedBalance)+" "+currency,
			valueobject.FormatMinor(r.Drift())+" "+currency,
			r.Corrected, r.Error)
	}
}

func printHealth(w *tabwriter.Writer, currency string, r *service.HealthReport) {
	fmt.Fprintf(w, "user\t%s\n", r.UserID)
	fmt.Fprintf(w, "healthy\t%t\n", r.Healthy)
	fmt.Fprintf(w, "balance\t%s\n", valueobject.FormatMinor(r.Balance)+" "+currency)
	fmt.Fprintf(w, "pending\t%s\n", valueobject.FormatMinor(r.Pending)+" "+currency)
	fmt.Fprintf(w, "days since sync\t%d\n", r.DaysSinceSync)
	fmt.Fprintf(w, "last sync status\t%s\n", r.LastSyncStatus)
	for _, rec := range r.Recommendations {
		fmt.Fprintf(w, "recommendation\t%s\n", rec)
	}
}
