package analysis

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/safewatch/safewatch-server/internal/apperr"
	"github.com/safewatch/safewatch-server/internal/jsonutil"
	"github.com/safewatch/safewatch-server/internal/store"
)

// DefaultScorerCmd is the emotion scoring command used when SCORER_CMD is
// unset.
const DefaultScorerCmd = "python3 process_photo.py"

// DefaultScorerTimeout bounds a single scoring run. Model loading dominates
// the runtime.
const DefaultScorerTimeout = 30 * time.Second

// rawScores matches the scorer's stdout JSON. encoding/json matches keys
// case-insensitively, so {"Aggression": ...} and {"aggression": ...} both
// land; keys the scorer omits stay zero.
type rawScores struct {
	Aggression  float64 `json:"aggression"`
	Hostility   float64 `json:"hostility"`
	Frustration float64 `json:"frustration"`
}

// SubprocessScorer runs an external command to rate the emotional content of
// an uploaded photo. The staged file's path is appended as the final
// argument, and the command must print a JSON object with Aggression,
// Hostility, and Frustration ratings to stdout.
type SubprocessScorer struct {
	Argv    []string
	Timeout time.Duration
}

// NewSubprocessScorerFromEnv builds a scorer from SCORER_CMD (the command
// line, split on whitespace; default DefaultScorerCmd) and SCORER_TIMEOUT
// (a Go duration string).
func NewSubprocessScorerFromEnv() *SubprocessScorer {
	cmd := strings.TrimSpace(os.Getenv("SCORER_CMD"))
	if cmd == "" {
		cmd = DefaultScorerCmd
	}

	timeout := DefaultScorerTimeout
	if v := os.Getenv("SCORER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Warn().Str("value", v).Msg("Invalid SCORER_TIMEOUT, using default")
		} else {
			timeout = d
		}
	}

	return &SubprocessScorer{
		Argv:    strings.Fields(cmd),
		Timeout: timeout,
	}
}

// Score runs the scoring command against the staged photo at path.
func (s *SubprocessScorer) Score(ctx context.Context, path string) (store.EmotionScores, error) {
	var zero store.EmotionScores
	if len(s.Argv) == 0 {
		return zero, &apperr.ExternalServiceError{Service: "scorer", Err: fmt.Errorf("no command configured")}
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultScorerTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string(nil), s.Argv[1:]...), path)
	cmd := exec.CommandContext(ctx, s.Argv[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	callStart := time.Now()
	err := cmd.Run()
	duration := time.Since(callStart)

	if ctx.Err() == context.DeadlineExceeded {
		log.Error().
			Str("command", s.Argv[0]).
			Dur("timeout", timeout).
			Msg("Scoring subprocess timed out")
		return zero, &apperr.ExternalServiceError{Service: "scorer", Err: fmt.Errorf("timed out after %s", timeout)}
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("command", s.Argv[0]).
			Str("stderr", truncate(stderr.String(), 500)).
			Dur("duration", duration).
			Msg("Scoring subprocess failed")
		return zero, &apperr.ExternalServiceError{Service: "scorer", Err: fmt.Errorf("%w: %s", err, truncate(stderr.String(), 200))}
	}

	// Model libraries tend to print warnings before the result; extract the
	// JSON object rather than requiring clean stdout.
	raw, err := jsonutil.ParseJSON[rawScores](stdout.String())
	if err != nil {
		log.Error().
			Err(err).
			Str("stdout", truncate(stdout.String(), 500)).
			Msg("Scoring subprocess produced unparseable output")
		return zero, &apperr.ExternalServiceError{Service: "scorer", Err: fmt.Errorf("unparseable output: %w", err)}
	}

	scores := store.EmotionScores{
		Aggression:  clampScore(raw.Aggression),
		Hostility:   clampScore(raw.Hostility),
		Frustration: clampScore(raw.Frustration),
	}

	log.Info().
		Float64("aggression", scores.Aggression).
		Float64("hostility", scores.Hostility).
		Float64("frustration", scores.Frustration).
		Dur("duration", duration).
		Msg("Emotion scoring complete")
	return scores, nil
}

// clampScore forces a rating into the 0–10 scale.
func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
