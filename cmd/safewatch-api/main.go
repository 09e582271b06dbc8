// Package main runs the enrichment service as a standalone HTTP server. The
// Lambda deployment in cmd/safewatch-lambda serves the identical route table;
// this binary exists for local development and container deployments.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/safewatch/safewatch-server/internal/analysis"
	"github.com/safewatch/safewatch-server/internal/api"
	"github.com/safewatch/safewatch-server/internal/boot"
	"github.com/safewatch/safewatch-server/internal/enrich"
	"github.com/safewatch/safewatch-server/internal/logging"
)

// CLI flags
var (
	portFlag  int
	modelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "safewatch-api",
	Short: "Emergency event enrichment API server",
	Long: `safewatch-api serves the emergency event enrichment HTTP API: event
creation with location, media attachment with AI scene description, emotion
scoring, user profiles, and the recent-events feed.

Requires SAFEWATCH_EVENTS_TABLE, SAFEWATCH_MEDIA_BUCKET, and a Gemini API key
via GEMINI_API_KEY or SSM Parameter Store.

Examples:
  safewatch-api
  safewatch-api --port 9090
  safewatch-api --model gemini-2.5-pro`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", analysis.DefaultModelName, "Gemini model for scene descriptions")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	initStart := time.Now()
	logging.Init()

	if cmd.Flags().Changed("model") {
		os.Setenv("GEMINI_MODEL", modelFlag)
	}

	aws := boot.InitAWS()
	eventStore, tableName := boot.InitDynamo(aws.Config)
	mediaStore, bucket := boot.InitMedia(aws.Config)
	apiKey, keySource := boot.LoadGeminiKey(aws.SSM)

	ctx := context.Background()
	geminiClient, err := analysis.NewGeminiClient(ctx, apiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	scorer := analysis.NewSubprocessScorerFromEnv()
	coord := &enrich.Coordinator{
		Store:     eventStore,
		Media:     mediaStore,
		Describer: analysis.NewGeminiDescriber(geminiClient),
		Scorer:    scorer,
	}

	addr := fmt.Sprintf(":%d", portFlag)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewHandler(coord, mediaStore),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	boot.StartupLog("safewatch-api", initStart).
		S3Bucket("media", bucket).
		DynamoTable("events", tableName).
		SSMParam("geminiApiKey", keySource).
		Config("model", analysis.GetModelName()).
		Config("port", fmt.Sprintf("%d", portFlag)).
		Feature("scoring", len(scorer.Argv) > 0).
		Log()

	log.Info().Int("port", portFlag).Msg("Starting API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
