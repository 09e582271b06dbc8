package analysis

import "os"

// Gemini model IDs used for image description.
const (
	// ModelGemini25Flash is stable, balanced performance.
	ModelGemini25Flash = "gemini-2.5-flash"

	// ModelGemini25FlashLite is for high-throughput, lowest cost.
	ModelGemini25FlashLite = "gemini-2.5-flash-lite"

	// ModelGemini25Pro is stable, for high-reasoning tasks.
	ModelGemini25Pro = "gemini-2.5-pro"
)

// DefaultModelName is the default Gemini model. Event photos need fast,
// reliable summarisation rather than deep reasoning.
const DefaultModelName = ModelGemini25Flash

// GetModelName returns the Gemini model to use, resolved from the
// GEMINI_MODEL environment variable with DefaultModelName as fallback.
func GetModelName() string {
	if env := os.Getenv("GEMINI_MODEL"); env != "" {
		return env
	}
	return DefaultModelName
}
