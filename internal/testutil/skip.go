// Package testutil holds helpers shared by storechat tests.
package testutil

import (
	"os"
	"testing"
)

// SkipIfNoNetwork skips the test if STORECHAT_TEST_SKIP_NETWORK is set.
// Use it for tests that bind a local httptest listener, which sandboxed
// environments may not allow.
func SkipIfNoNetwork(t *testing.T) {
	t.Helper()
	if os.Getenv("STORECHAT_TEST_SKIP_NETWORK") != "" {
		t.Skip("skipping network test: STORECHAT_TEST_SKIP_NETWORK is set")
	}
}
