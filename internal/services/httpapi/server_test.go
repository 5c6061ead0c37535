package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/temirov/reposcope/internal/acquire"
	"github.com/temirov/reposcope/internal/failure"
	"github.com/temirov/reposcope/internal/metrics"
	"github.com/temirov/reposcope/internal/service"
	"github.com/temirov/reposcope/internal/services/httpapi"
	"github.com/temirov/reposcope/internal/types"
)

const fixtureCredential = "ghp_fixturecredential"

type fixtureStrategy struct {
	outcome     acquire.Outcome
	receivedURL chan string
}

func (fixtureStrategy) Name() string {
	return "fixture"
}

func (strategy fixtureStrategy) Attempt(_ context.Context, request acquire.AttemptRequest) acquire.AttemptResult {
	if strategy.receivedURL != nil {
		strategy.receivedURL <- request.URL
	}
	if strategy.outcome != acquire.OutcomeCloned {
		return acquire.AttemptResult{Outcome: strategy.outcome, Cause: errors.New("remote said no")}
	}
	files := map[string]string{
		"main.go":         "package main\n\nfunc main() {}\n",
		"docs/read me.md": "# Title\n",
	}
	for relativePath, content := range files {
		fullPath := filepath.Join(request.Directory, filepath.FromSlash(relativePath))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return acquire.AttemptResult{Outcome: acquire.OutcomeFailed, Cause: err}
		}
		if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
			return acquire.AttemptResult{Outcome: acquire.OutcomeFailed, Cause: err}
		}
	}
	return acquire.AttemptResult{Outcome: acquire.OutcomeCloned}
}

func newTestServer(t *testing.T, strategy fixtureStrategy, config httpapi.Config) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	root := t.TempDir()
	collectors := metrics.New()
	repositoryService, newError := service.New(service.Config{
		BaseDirectory: filepath.Join(root, "repositories"),
		LockDirectory: filepath.Join(root, "locks"),
		Strategies:    []acquire.Strategy{strategy},
		ChunkSize:     5,
	}, nil, collectors)
	if newError != nil {
		t.Fatalf("new service: %v", newError)
	}
	server := httpapi.NewServer(config, repositoryService, nil, collectors)
	testServer := httptest.NewServer(server.Handler())
	t.Cleanup(testServer.Close)
	return testServer, collectors
}

func counterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func doRequest(t *testing.T, method string, target string, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	request, requestError := http.NewRequest(method, target, reader)
	if requestError != nil {
		t.Fatalf("new request: %v", requestError)
	}
	response, responseError := http.DefaultClient.Do(request)
	if responseError != nil {
		t.Fatalf("perform request: %v", responseError)
	}
	defer response.Body.Close()
	payload, readError := io.ReadAll(response.Body)
	if readError != nil {
		t.Fatalf("read body: %v", readError)
	}
	return response, payload
}

func cloneFixture(t *testing.T, baseURL string) string {
	t.Helper()
	response, payload := doRequest(t, http.MethodPost, baseURL+"/clone", `{"repo_url":"octocat/Hello-World"}`)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("clone status %d: %s", response.StatusCode, payload)
	}
	var cloneResponse types.CloneResponse
	if err := json.Unmarshal(payload, &cloneResponse); err != nil {
		t.Fatalf("decode clone response: %v", err)
	}
	return cloneResponse.RepositoryID
}

func TestRepositoryLifecycleOverHTTP(t *testing.T) {
	receivedURL := make(chan string, 1)
	testServer, collectors := newTestServer(t, fixtureStrategy{outcome: acquire.OutcomeCloned, receivedURL: receivedURL}, httpapi.Config{Credential: fixtureCredential, Version: "v1.2.3"})

	healthResponse, healthPayload := doRequest(t, http.MethodGet, testServer.URL+"/health", "")
	if healthResponse.StatusCode != http.StatusOK || !strings.Contains(string(healthPayload), `"version":"v1.2.3"`) {
		t.Fatalf("unexpected health response %d: %s", healthResponse.StatusCode, healthPayload)
	}

	handle := cloneFixture(t, testServer.URL)
	if cloneURL := <-receivedURL; !strings.Contains(cloneURL, fixtureCredential) {
		t.Fatalf("configured credential was not injected into the clone URL")
	}

	generateResponse, generatePayload := doRequest(t, http.MethodGet, testServer.URL+"/generate?repo_id="+handle, "")
	if generateResponse.StatusCode != http.StatusOK {
		t.Fatalf("generate status %d: %s", generateResponse.StatusCode, generatePayload)
	}
	var report types.AnalysisReport
	if err := json.Unmarshal(generatePayload, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.TotalLines != 4 || report.Languages["Go"] != 100 || len(report.Languages) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	fileResponse, filePayload := doRequest(t, http.MethodGet, testServer.URL+"/file?repo_id="+handle+"&path=docs/read%20me.md", "")
	if fileResponse.StatusCode != http.StatusOK || string(filePayload) != "# Title\n" {
		t.Fatalf("unexpected file response %d: %q", fileResponse.StatusCode, filePayload)
	}
	if disposition := fileResponse.Header.Get("Content-Disposition"); disposition != `attachment; filename="read me.md"` {
		t.Fatalf("unexpected disposition %q", disposition)
	}

	infoResponse, infoPayload := doRequest(t, http.MethodGet, testServer.URL+"/file/info?repo_id="+handle+"&path=main.go", "")
	var information types.FileInfo
	if err := json.Unmarshal(infoPayload, &information); err != nil || infoResponse.StatusCode != http.StatusOK {
		t.Fatalf("file info %d: %s (%v)", infoResponse.StatusCode, infoPayload, err)
	}
	if information.Language != "Go" || information.Size != int64(len("package main\n\nfunc main() {}\n")) {
		t.Fatalf("unexpected file info %+v", information)
	}

	for _, expected := range []bool{true, false} {
		cleanupResponse, cleanupPayload := doRequest(t, http.MethodDelete, testServer.URL+"/cleanup?repo_id="+handle, "")
		var cleanup types.CleanupResponse
		if err := json.Unmarshal(cleanupPayload, &cleanup); err != nil || cleanupResponse.StatusCode != http.StatusOK {
			t.Fatalf("cleanup %d: %s (%v)", cleanupResponse.StatusCode, cleanupPayload, err)
		}
		if cleanup.Success != expected {
			t.Fatalf("expected cleanup success %t, got %t", expected, cleanup.Success)
		}
	}

	if streamed := counterValue(t, collectors.StreamedBytesTotal); streamed != float64(len("# Title\n")) {
		t.Fatalf("expected streamed bytes to be counted, got %v", streamed)
	}
	metricsResponse, metricsPayload := doRequest(t, http.MethodGet, testServer.URL+"/metrics", "")
	if metricsResponse.StatusCode != http.StatusOK || !strings.Contains(string(metricsPayload), "reposcope_operations_total") {
		t.Fatalf("unexpected metrics response %d", metricsResponse.StatusCode)
	}
}

func TestFailuresMapToStatusCodes(t *testing.T) {
	testServer, _ := newTestServer(t, fixtureStrategy{outcome: acquire.OutcomeCloned}, httpapi.Config{})
	handle := cloneFixture(t, testServer.URL)
	missingHandle := "0b9d2f4e-7c1a-4f5e-9a3b-2d6c8e1f0a7b"

	testCases := []struct {
		name         string
		method       string
		target       string
		body         string
		expectedCode int
		expectedKind failure.Kind
	}{
		{name: "malformed body", method: http.MethodPost, target: "/clone", body: "{", expectedCode: http.StatusBadRequest, expectedKind: failure.KindInvalidReference},
		{name: "foreign host", method: http.MethodPost, target: "/clone", body: `{"repo_url":"https://example.com/a/b"}`, expectedCode: http.StatusBadRequest, expectedKind: failure.KindInvalidReference},
		{name: "malformed handle", method: http.MethodGet, target: "/generate?repo_id=../etc", expectedCode: http.StatusBadRequest, expectedKind: failure.KindInvalidHandle},
		{name: "unknown handle", method: http.MethodGet, target: "/generate?repo_id=" + missingHandle, expectedCode: http.StatusNotFound, expectedKind: failure.KindNotFound},
		{name: "traversal", method: http.MethodGet, target: "/file?repo_id=" + handle + "&path=../../etc/passwd", expectedCode: http.StatusBadRequest, expectedKind: failure.KindInvalidPath},
		{name: "missing file", method: http.MethodGet, target: "/file?repo_id=" + handle + "&path=absent.txt", expectedCode: http.StatusNotFound, expectedKind: failure.KindNotFound},
		{name: "directory target", method: http.MethodGet, target: "/file/info?repo_id=" + handle + "&path=docs", expectedCode: http.StatusBadRequest, expectedKind: failure.KindInvalidTarget},
		{name: "cleanup malformed handle", method: http.MethodDelete, target: "/cleanup?repo_id=nope", expectedCode: http.StatusBadRequest, expectedKind: failure.KindInvalidHandle},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			response, payload := doRequest(t, testCase.method, testServer.URL+testCase.target, testCase.body)
			if response.StatusCode != testCase.expectedCode {
				t.Fatalf("expected status %d, got %d: %s", testCase.expectedCode, response.StatusCode, payload)
			}
			var errorResponse types.ErrorResponse
			if err := json.Unmarshal(payload, &errorResponse); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if errorResponse.Kind != string(testCase.expectedKind) {
				t.Fatalf("expected kind %s, got %s", testCase.expectedKind, errorResponse.Kind)
			}
		})
	}
}

func TestCloneTransportFailureDoesNotLeakCredential(t *testing.T) {
	testServer, _ := newTestServer(t, fixtureStrategy{outcome: acquire.OutcomeTransportFailure}, httpapi.Config{Credential: fixtureCredential})
	response, payload := doRequest(t, http.MethodPost, testServer.URL+"/clone", `{"repo_url":"octocat/Hello-World","branch":"main"}`)
	if response.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", response.StatusCode, payload)
	}
	if strings.Contains(string(payload), fixtureCredential) {
		t.Fatalf("response leaked the credential: %s", payload)
	}
}

func TestStatusCode(t *testing.T) {
	testCases := map[failure.Kind]int{
		failure.KindInvalidReference:       http.StatusBadRequest,
		failure.KindInvalidPath:            http.StatusBadRequest,
		failure.KindInvalidHandle:          http.StatusBadRequest,
		failure.KindInvalidTarget:          http.StatusBadRequest,
		failure.KindNotFound:               http.StatusNotFound,
		failure.KindAuthOrTransportFailure: http.StatusBadGateway,
		failure.KindCloneFailure:           http.StatusUnprocessableEntity,
		failure.KindHandleBusy:             http.StatusConflict,
		failure.KindCanceled:               http.StatusRequestTimeout,
		failure.KindInternal:               http.StatusInternalServerError,
	}
	for kind, expected := range testCases {
		if actual := httpapi.StatusCode(kind); actual != expected {
			t.Fatalf("StatusCode(%s) = %d, want %d", kind, actual, expected)
		}
	}
}

func TestRateLimiterRejectsExcessRequests(t *testing.T) {
	testServer, collectors := newTestServer(t, fixtureStrategy{outcome: acquire.OutcomeCloned}, httpapi.Config{RequestsPerMinute: 1, Burst: 2})
	expectedCodes := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for index, expected := range expectedCodes {
		response, _ := doRequest(t, http.MethodGet, testServer.URL+"/health", "")
		if response.StatusCode != expected {
			t.Fatalf("request %d: expected %d, got %d", index, expected, response.StatusCode)
		}
	}
	if limited := counterValue(t, collectors.RateLimitedRequests); limited != 1 {
		t.Fatalf("expected one rate limited request, got %v", limited)
	}
	metricsResponse, _ := doRequest(t, http.MethodGet, testServer.URL+"/metrics", "")
	if metricsResponse.StatusCode != http.StatusOK {
		t.Fatalf("metrics endpoint must not be rate limited, got %d", metricsResponse.StatusCode)
	}
}

func TestRateLimiterKeysOnProxyHeadersOnlyWhenTrusted(t *testing.T) {
	testCases := []struct {
		name          string
		trustProxy    bool
		expectedCodes []int
	}{
		{name: "rotating headers share the peer bucket", trustProxy: false, expectedCodes: []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}},
		{name: "trusted proxy headers select the bucket", trustProxy: true, expectedCodes: []int{http.StatusOK, http.StatusOK, http.StatusOK}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			testServer, _ := newTestServer(t, fixtureStrategy{outcome: acquire.OutcomeCloned}, httpapi.Config{RequestsPerMinute: 1, Burst: 1, TrustProxyHeaders: testCase.trustProxy})
			forwardedAddresses := []string{"203.0.113.1", "203.0.113.2, 10.0.0.1", "203.0.113.3"}
			for index, forwardedAddress := range forwardedAddresses {
				request, requestError := http.NewRequest(http.MethodGet, testServer.URL+"/health", nil)
				if requestError != nil {
					t.Fatalf("new request: %v", requestError)
				}
				request.Header.Set("X-Forwarded-For", forwardedAddress)
				response, responseError := http.DefaultClient.Do(request)
				if responseError != nil {
					t.Fatalf("perform request: %v", responseError)
				}
				response.Body.Close()
				if response.StatusCode != testCase.expectedCodes[index] {
					t.Fatalf("request %d: expected %d, got %d", index, testCase.expectedCodes[index], response.StatusCode)
				}
			}
		})
	}
}

func TestServerRunStopsOnCancel(t *testing.T) {
	server := httpapi.NewServer(httpapi.Config{Address: "127.0.0.1:0"}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addressCh := make(chan string, 1)
	errorCh := make(chan error, 1)
	go func() {
		errorCh <- server.Run(ctx, func(address string) {
			addressCh <- address
		})
	}()

	select {
	case address := <-addressCh:
		client := http.Client{Timeout: 2 * time.Second}
		response, err := client.Get("http://" + address + "/health")
		if err != nil {
			t.Fatalf("perform request: %v", err)
		}
		response.Body.Close()
		if response.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d", response.StatusCode)
		}
	case err := <-errorCh:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not start")
	}

	cancel()
	select {
	case err := <-errorCh:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
