package factory

import (
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func TestNewModuleLoggerTagsModule(t *testing.T) {
	hook := logtest.NewLocal(logrus.StandardLogger())
	defer hook.Reset()

	NewModuleLogger("ledger").Info("settled")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, "ledger", entry.Data["module"])
}

func TestLoggerWithContextPrefersResponseRequestID(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	e := echo.New()
	req := httptest.NewRequest("POST", "/webhooks/stripe", nil)
	req.Header.Set(echo.HeaderXRequestID, "from-client")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Response().Header().Set(echo.HeaderXRequestID, "assigned")

	LoggerWithContext(logger, ctx).Warn("webhook")
	require.Equal(t, "assigned", hook.LastEntry().Data["request_id"])
}

func TestLoggerWithContextWithoutRequestID(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	e := echo.New()
	ctx := e.NewContext(httptest.NewRequest("GET", "/health", nil), httptest.NewRecorder())

	LoggerWithContext(logger, ctx).Info("health")
	_, tagged := hook.LastEntry().Data["request_id"]
	require.False(t, tagged)

	require.NotNil(t, LoggerWithContext(nil, nil))
}
