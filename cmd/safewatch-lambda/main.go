// Package main runs the enrichment service behind API Gateway. All clients
// and the Gemini API key are initialized once at cold start; the handler is
// the same route table the standalone server in cmd/safewatch-api uses.
//
// Container: needs python3 plus the scorer script on PATH for emotion scoring.
// Memory: 1 GB
// Timeout: 2 minutes (bounded by the Gemini call and scorer subprocess)
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/safewatch/safewatch-server/internal/analysis"
	"github.com/safewatch/safewatch-server/internal/api"
	"github.com/safewatch/safewatch-server/internal/boot"
	"github.com/safewatch/safewatch-server/internal/enrich"
	"github.com/safewatch/safewatch-server/internal/logging"
)

var (
	coldStart = true
	handler   http.Handler
)

func init() {
	initStart := time.Now()
	logging.Init()

	aws := boot.InitAWS()
	eventStore, tableName := boot.InitDynamo(aws.Config)
	mediaStore, bucket := boot.InitMedia(aws.Config)
	apiKey, keySource := boot.LoadGeminiKey(aws.SSM)

	geminiClient, err := analysis.NewGeminiClient(context.Background(), apiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	coord := &enrich.Coordinator{
		Store:     eventStore,
		Media:     mediaStore,
		Describer: analysis.NewGeminiDescriber(geminiClient),
		Scorer:    analysis.NewSubprocessScorerFromEnv(),
	}
	handler = api.NewHandler(coord, mediaStore)

	boot.StartupLog("safewatch-lambda", initStart).
		S3Bucket("media", bucket).
		DynamoTable("events", tableName).
		SSMParam("geminiApiKey", keySource).
		Config("model", analysis.GetModelName()).
		Log()
}

func main() {
	adapter := httpadapter.NewV2(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if coldStart {
			coldStart = false
			log.Info().Str("function", "safewatch-lambda").Msg("Cold start — first invocation")
		}
		handler.ServeHTTP(w, r)
	}))
	lambda.Start(adapter.ProxyWithContext)
}
