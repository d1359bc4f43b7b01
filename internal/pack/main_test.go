//go:build !integration

package pack

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for the pack package, which
// owns background ingest goroutines that must all finish by Close().
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*http2clientConnReadLoop).run"),
	)
}
