package testutil

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/genkit"
)

// NewGenkit initializes a plugin-free Genkit instance for tests. Register
// MockModel and MockEmbedder on it instead of real providers.
func NewGenkit(t *testing.T) *genkit.Genkit {
	t.Helper()

	g := genkit.Init(context.Background())
	if g == nil {
		t.Fatal("initializing genkit for tests")
	}
	return g
}
