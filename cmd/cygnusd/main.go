// Command cygnusd runs the payment agent as an HTTP service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	cygnus "github.com/cygnuslabs/cygnus"
	"github.com/cygnuslabs/cygnus/api"
	"github.com/cygnuslabs/cygnus/config"
	"github.com/cygnuslabs/cygnus/logger"
	"github.com/cygnuslabs/cygnus/scheduler"
	"github.com/cygnuslabs/cygnus/types"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent, err := cygnus.New(ctx, cfg, cygnus.WithLogger(logger.NewZapLogger(cfg.LogLevel)))
	if err != nil {
		panic(err)
	}
	defer agent.Close()

	log := agent.Log

	handlers := api.NewHandlers(agent.Executor, agent.Audit, agent.Gate, agent.Executor.Contracts, agent.Pools, agent.Analytics, log)

	sched := scheduler.New(log)
	if cfg.SchedulerPaymentDestination != "" && cfg.SchedulerPaymentAmount != "" {
		interval := time.Duration(cfg.SchedulerPaymentIntervalSeconds) * time.Second
		if interval <= 0 {
			interval = time.Hour
		}
		err := sched.AddIntervalJob("recurring-payment", interval, func() {
			result := agent.Executor.Execute(context.Background(), &types.PaymentIntent{
				Kind:        types.KindTransfer,
				Destination: cfg.SchedulerPaymentDestination,
				Amount:      cfg.SchedulerPaymentAmount,
				Memo:        "scheduled",
			})
			if !result.Success {
				log.Error("scheduled payment failed", logger.Fields{
					"code":    result.ErrorCode,
					"message": result.Message,
				})
			}
		})
		if err != nil {
			log.Error("failed to register scheduled payment", logger.Fields{"error": err.Error()})
		}
	}
	sched.Start()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(handlers),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("listening", logger.Fields{"addr": cfg.ListenAddr, "network": cfg.StellarNetwork})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", logger.Fields{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", logger.Fields{"error": err.Error()})
	}
	<-sched.Stop().Done()
}
