// Package boot holds the process bootstrap shared by the standalone server
// and the Lambda entrypoint: AWS config, DynamoDB and S3 clients, and the
// Gemini API key from SSM Parameter Store. Keeping the two entrypoints on the
// same helpers means they cannot drift in how they resolve configuration.
package boot

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/safewatch/safewatch-server/internal/logging"
	"github.com/safewatch/safewatch-server/internal/media"
	"github.com/safewatch/safewatch-server/internal/store"
)

// Environment variables resolved at startup.
const (
	EnvEventsTable = "SAFEWATCH_EVENTS_TABLE"
	EnvMediaBucket = "SAFEWATCH_MEDIA_BUCKET"

	// DefaultGeminiKeyParam is the SSM parameter holding the Gemini API key
	// when GEMINI_API_KEY is not set directly. Override with SSM_API_KEY_PARAM.
	DefaultGeminiKeyParam = "/safewatch/prod/gemini-api-key"
)

// AWSClients holds the core AWS SDK clients shared by both entrypoints.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config. Fatals when no usable config is found,
// since every downstream client needs it.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitDynamo creates the event store from the table name in EnvEventsTable.
// Fatals if the variable is empty.
func InitDynamo(cfg aws.Config) (*store.DynamoStore, string) {
	tableName := os.Getenv(EnvEventsTable)
	if tableName == "" {
		log.Fatal().Str("envVar", EnvEventsTable).Msg("DynamoDB table environment variable is required")
	}
	return store.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName), tableName
}

// InitMedia creates the S3 media store from the bucket name in EnvMediaBucket.
// Fatals if the variable is empty.
func InitMedia(cfg aws.Config) (*media.S3Store, string) {
	bucket := os.Getenv(EnvMediaBucket)
	if bucket == "" {
		log.Fatal().Str("envVar", EnvMediaBucket).Msg("Media bucket environment variable is required")
	}
	return media.NewS3Store(s3.NewFromConfig(cfg), bucket), bucket
}

// LoadGeminiKey returns the Gemini API key, preferring GEMINI_API_KEY and
// falling back to SSM Parameter Store. Fatals when neither source yields a
// key, since the description pipeline cannot run without one.
func LoadGeminiKey(ssmClient *ssm.Client) (key, source string) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key, "env"
	}

	paramName := logging.EnvOrDefault("SSM_API_KEY_PARAM", DefaultGeminiKeyParam)
	ssmStart := time.Now()
	result, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Fatal().Err(err).Str("param", paramName).Msg("Failed to read Gemini API key from SSM")
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Gemini API key loaded from SSM")
	return *result.Parameter.Value, paramName
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
