package internal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/grpchealth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiation/riggerhire/pkg/cerr"
)

func checkHealth(t *testing.T, ts *testServer, body string) (int, string) {
	t.Helper()
	resp, err := ts.Client().Post(ts.URL+"/grpc.health.v1.Health/Check", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(out)
}

func TestServer_GRPCHealth(t *testing.T) {
	ts := newTestServer(t)

	status, body := checkHealth(t, ts, `{}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"SERVING"}`, body)

	status, body = checkHealth(t, ts, `{"service":"`+HealthService+`"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"SERVING"}`, body)

	status, body = checkHealth(t, ts, `{"service":"payments.v1.Ledger"}`)
	assert.Equal(t, http.StatusNotFound, status)
	got := decode[errorBody](t, []byte(body))
	assert.Equal(t, "not_found", got.Code)
}

func TestHealthChecker_StoreDown(t *testing.T) {
	hc := NewHealthChecker(func(context.Context) error { return errors.New("database is locked") })

	resp, err := hc.Check(context.Background(), &grpchealth.CheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpchealth.StatusNotServing, resp.Status)

	_, err = hc.Check(context.Background(), &grpchealth.CheckRequest{Service: "unknown"})
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	rec := httptest.NewRecorder()
	hc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
