package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"wafa/pkg/logx"
)

func TestSetSessionStatusIsExclusive(t *testing.T) {
	SetSessionStatus("CONNECTED", []string{"CONNECTING", "CONNECTED"})
	if v := testutil.ToFloat64(sessionStatus.WithLabelValues("CONNECTED")); v != 1 {
		t.Fatalf("CONNECTED gauge = %v", v)
	}
	SetSessionStatus("CONNECTING", []string{"CONNECTING", "CONNECTED"})
	if v := testutil.ToFloat64(sessionStatus.WithLabelValues("CONNECTED")); v != 0 {
		t.Fatalf("CONNECTED gauge after change = %v", v)
	}
}

func TestRecordDelivery(t *testing.T) {
	before := testutil.ToFloat64(deliveries.WithLabelValues("image", "error"))
	RecordDelivery("image", false, time.Millisecond)
	if got := testutil.ToFloat64(deliveries.WithLabelValues("image", "error")); got != before+1 {
		t.Fatalf("counter = %v, want %v", got, before+1)
	}
}

func TestMiddlewareAssignsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RequestLogger(logx.Nop()), RequestMetrics())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	id := w.Header().Get(RequestIDHeader)
	if id == "" || w.Body.String() != id {
		t.Fatalf("request id header %q, body %q", id, w.Body.String())
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc" {
		t.Fatalf("incoming request id not kept: %q", got)
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{})
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
