package providers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockMetrics struct {
	requestEndpoint string
	requestStatus   int
	requestCalls    int
	durationCalls   int
}

func (m *mockMetrics) IncRequestsTotal(endpoint string, status int) {
	m.requestEndpoint = endpoint
	m.requestStatus = status
	m.requestCalls++
}
func (m *mockMetrics) ObserveRequestDuration(_ string, _ time.Duration) { m.durationCalls++ }
func (m *mockMetrics) IncCacheHits()                                    {}
func (m *mockMetrics) IncCacheMisses()                                  {}
func (m *mockMetrics) IncSamplesIngested(_ string)                      {}
func (m *mockMetrics) ObserveComputeDuration(_ time.Duration)           {}
func (m *mockMetrics) IncComputeTotal(_ string)                         {}
func (m *mockMetrics) IncEventsEmitted(_ string, _ string)              {}
func (m *mockMetrics) IncEventsDropped()                                {}
func (m *mockMetrics) IncEventsDelivered()                              {}

type accessLogEntry struct {
	logType TypeEnum
	format  string
}

type mwLogger struct {
	entries []accessLogEntry
}

func (m *mwLogger) Errorf(_ TypeEnum, _ string, _ ...interface{}) {}
func (m *mwLogger) Warnf(_ TypeEnum, _ string, _ ...interface{})  {}
func (m *mwLogger) Debugf(_ TypeEnum, _ string, _ ...interface{}) {}
func (m *mwLogger) Infof(t TypeEnum, format string, _ ...interface{}) {
	m.entries = append(m.entries, accessLogEntry{logType: t, format: format})
}
func (m *mwLogger) Fatalf(_ TypeEnum, _ string, _ ...interface{}) {}
func (m *mwLogger) Close()                                        {}

func TestObservabilityMiddleware_CapturesStatusAndEndpoint(t *testing.T) {
	metrics := &mockMetrics{}
	logger := &mwLogger{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	mw := ObservabilityMiddleware(logger, metrics, handler)

	req := httptest.NewRequest(http.MethodPost, "/samples", nil)
	rr := httptest.NewRecorder()
	mw.ServeHTTP(rr, req)

	assert.Equal(t, 1, metrics.requestCalls)
	assert.Equal(t, "/samples", metrics.requestEndpoint)
	assert.Equal(t, http.StatusCreated, metrics.requestStatus)
	assert.Equal(t, 1, metrics.durationCalls)
}

func TestObservabilityMiddleware_DefaultStatus200(t *testing.T) {
	metrics := &mockMetrics{}
	logger := &mwLogger{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	mw := ObservabilityMiddleware(logger, metrics, handler)

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	rr := httptest.NewRecorder()
	mw.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, metrics.requestStatus)
}

func TestObservabilityMiddleware_AccessLogByMethod(t *testing.T) {
	logger := &mwLogger{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	mw := ObservabilityMiddleware(logger, &mockMetrics{}, handler)

	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/profile", nil))
	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/samples", nil))

	assert.Len(t, logger.entries, 2)
	assert.Equal(t, TypeGet, logger.entries[0].logType)
	assert.Equal(t, TypePost, logger.entries[1].logType)
}

func TestStatusWriter_WriteHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rr, status: http.StatusOK}

	sw.WriteHeader(http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, sw.status)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
