package app

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/fmriflow/internal/hcl_adapter"
	"github.com/vk/fmriflow/internal/testutil"
)

// SetupAppTest creates an App with debug logging captured in a buffer. The
// log is printed when FMRIFLOW_TEST_LOGS is "true".
func SetupAppTest(t *testing.T, cfg Config, opts ...Option) (*App, *testutil.SafeBuffer) {
	t.Helper()

	cfg.LogLevel = "debug"
	validated, err := NewConfig(cfg)
	require.NoError(t, err)

	logBuffer := &testutil.SafeBuffer{}
	testApp, err := NewApp(logBuffer, validated, hcl_adapter.NewLoader(), opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		if os.Getenv("FMRIFLOW_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})
	return testApp, logBuffer
}
