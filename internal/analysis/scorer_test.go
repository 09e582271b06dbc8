package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/safewatch/safewatch-server/internal/apperr"
)

// writeScript drops an executable shell script into a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scorer.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func photoFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF}, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSubprocessScorer_Score(t *testing.T) {
	script := writeScript(t, `echo '{"Aggression": 7.1, "Hostility": 6.5, "Frustration": 8.9}'`)
	scorer := &SubprocessScorer{Argv: []string{script}, Timeout: 10 * time.Second}

	scores, err := scorer.Score(context.Background(), photoFixture(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores.Aggression != 7.1 || scores.Hostility != 6.5 || scores.Frustration != 8.9 {
		t.Errorf("unexpected scores: %+v", scores)
	}
}

func TestSubprocessScorer_ReceivesPhotoPath(t *testing.T) {
	// The script exits non-zero unless its first argument is an existing
	// file, confirming the photo path is appended to the command line.
	script := writeScript(t, `test -f "$1" || exit 3
echo '{"Aggression": 1, "Hostility": 1, "Frustration": 1}'`)
	scorer := &SubprocessScorer{Argv: []string{script}, Timeout: 10 * time.Second}

	if _, err := scorer.Score(context.Background(), photoFixture(t)); err != nil {
		t.Fatalf("script should have received an existing file path: %v", err)
	}
}

func TestSubprocessScorer_DiagnosticsBeforeJSON(t *testing.T) {
	script := writeScript(t, `echo "loading model weights..."
echo "warning: CPU only" >&2
echo '{"aggression": 4.2, "hostility": 3.0, "frustration": 5.5}'`)
	scorer := &SubprocessScorer{Argv: []string{script}, Timeout: 10 * time.Second}

	scores, err := scorer.Score(context.Background(), photoFixture(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores.Aggression != 4.2 {
		t.Errorf("unexpected scores: %+v", scores)
	}
}

func TestSubprocessScorer_MissingFieldsAreZero(t *testing.T) {
	script := writeScript(t, `echo '{"Aggression": 9.5}'`)
	scorer := &SubprocessScorer{Argv: []string{script}, Timeout: 10 * time.Second}

	scores, err := scorer.Score(context.Background(), photoFixture(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores.Aggression != 9.5 || scores.Hostility != 0 || scores.Frustration != 0 {
		t.Errorf("missing fields should be zero: %+v", scores)
	}
}

func TestSubprocessScorer_ClampsOutOfRange(t *testing.T) {
	script := writeScript(t, `echo '{"Aggression": -3, "Hostility": 14.2, "Frustration": 10}'`)
	scorer := &SubprocessScorer{Argv: []string{script}, Timeout: 10 * time.Second}

	scores, err := scorer.Score(context.Background(), photoFixture(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores.Aggression != 0 {
		t.Errorf("negative rating should clamp to 0, got %v", scores.Aggression)
	}
	if scores.Hostility != 10 {
		t.Errorf("rating above 10 should clamp to 10, got %v", scores.Hostility)
	}
	if scores.Frustration != 10 {
		t.Errorf("boundary rating should pass through, got %v", scores.Frustration)
	}
}

func TestSubprocessScorer_NonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "model file missing" >&2
exit 2`)
	scorer := &SubprocessScorer{Argv: []string{script}, Timeout: 10 * time.Second}

	_, err := scorer.Score(context.Background(), photoFixture(t))
	var ese *apperr.ExternalServiceError
	if !errors.As(err, &ese) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if ese.Service != "scorer" {
		t.Errorf("expected scorer service, got %q", ese.Service)
	}
}

func TestSubprocessScorer_UnparseableOutput(t *testing.T) {
	script := writeScript(t, `echo "sorry, no scores today"`)
	scorer := &SubprocessScorer{Argv: []string{script}, Timeout: 10 * time.Second}

	_, err := scorer.Score(context.Background(), photoFixture(t))
	var ese *apperr.ExternalServiceError
	if !errors.As(err, &ese) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
}

func TestSubprocessScorer_Timeout(t *testing.T) {
	script := writeScript(t, `sleep 5
echo '{"Aggression": 1}'`)
	scorer := &SubprocessScorer{Argv: []string{script}, Timeout: 100 * time.Millisecond}

	start := time.Now()
	_, err := scorer.Score(context.Background(), photoFixture(t))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestNewSubprocessScorerFromEnv(t *testing.T) {
	t.Run("unset uses default command", func(t *testing.T) {
		t.Setenv("SCORER_CMD", "")
		t.Setenv("SCORER_TIMEOUT", "")

		scorer := NewSubprocessScorerFromEnv()
		if scorer == nil {
			t.Fatal("expected scorer")
		}
		if len(scorer.Argv) != 2 || scorer.Argv[0] != "python3" || scorer.Argv[1] != "process_photo.py" {
			t.Errorf("unexpected default argv: %v", scorer.Argv)
		}
		if scorer.Timeout != DefaultScorerTimeout {
			t.Errorf("unexpected default timeout: %v", scorer.Timeout)
		}
	})

	t.Run("command line split on whitespace", func(t *testing.T) {
		t.Setenv("SCORER_CMD", "python3 process_photo.py --quiet")
		t.Setenv("SCORER_TIMEOUT", "90s")

		scorer := NewSubprocessScorerFromEnv()
		if scorer == nil {
			t.Fatal("expected scorer")
		}
		want := []string{"python3", "process_photo.py", "--quiet"}
		if len(scorer.Argv) != len(want) {
			t.Fatalf("unexpected argv: %v", scorer.Argv)
		}
		for i := range want {
			if scorer.Argv[i] != want[i] {
				t.Errorf("argv[%d]: got %q, want %q", i, scorer.Argv[i], want[i])
			}
		}
		if scorer.Timeout != 90*time.Second {
			t.Errorf("unexpected timeout: %v", scorer.Timeout)
		}
	})

	t.Run("bad timeout falls back to default", func(t *testing.T) {
		t.Setenv("SCORER_CMD", "scorer")
		t.Setenv("SCORER_TIMEOUT", "banana")

		scorer := NewSubprocessScorerFromEnv()
		if scorer.Timeout != DefaultScorerTimeout {
			t.Errorf("unexpected timeout: %v", scorer.Timeout)
		}
	})
}
