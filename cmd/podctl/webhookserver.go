package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/recoura/pod-engine/pkg/claims"
	"github.com/recoura/pod-engine/pkg/webhook"
)

// webhookServerCmd serves the carrier tracking webhook endpoint.
var webhookServerCmd = &cobra.Command{
	Use:   "webhook-server",
	Short: "Serve the carrier tracking webhook endpoint",
	Long: `webhook-server accepts tracking update webhooks from the carrier
aggregator and applies them to matching claims: status transitions per event
tag, bypass alerts for contradictory evidence, and idempotent handling of
redelivered events.

Endpoints:
  POST /webhooks/tracking  tracking update ingestion
  GET  /health             liveness probe
  GET  /metrics            Prometheus metrics`,
	RunE: runWebhookServer,
}

func init() {
	rootCmd.AddCommand(webhookServerCmd)

	webhookServerCmd.Flags().String("addr", ":8080", "listen address")
	_ = viper.BindPFlag("webhook.addr", webhookServerCmd.Flags().Lookup("addr"))
}

func runWebhookServer(cmd *cobra.Command, args []string) error {
	eng, err := newEngine("webhook-server")
	if err != nil {
		return err
	}
	defer eng.Close()

	handler, err := webhook.NewHandler(
		eng.store,
		claims.NewRedisAlertSink(eng.redis),
		webhook.NewRedisLedger(eng.redis),
		eng.logger,
	)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/webhooks/tracking", webhook.NewHTTPHandler(handler, eng.logger))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := viper.GetString("webhook.addr")
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eng.logger.Info().Str("addr", addr).Msg("Webhook server listening")
	return server.ListenAndServe()
}
