// Package httpapi exposes the repository service over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/temirov/reposcope/internal/failure"
	"github.com/temirov/reposcope/internal/metrics"
	"github.com/temirov/reposcope/internal/service"
	"github.com/temirov/reposcope/internal/types"
)

const (
	defaultListenAddress     = "127.0.0.1:8000"
	defaultShutdownDuration  = 5 * time.Second
	defaultBurst             = 10
	limiterResetInterval     = time.Hour
	maximumRequestBodyBytes  = 1 << 20
	headerContentType        = "Content-Type"
	headerContentDisposition = "Content-Disposition"
	headerContentLength      = "Content-Length"
	headerForwardedFor       = "X-Forwarded-For"
	headerRealIP             = "X-Real-IP"
	mimeTypeJSON             = "application/json"
	mimeTypeBinary           = "application/octet-stream"
	dispositionAttachment    = "attachment"
	statusHealthy            = "healthy"
	queryRepositoryID        = "repo_id"
	queryPath                = "path"
	cloneSucceededMessage    = "repository cloned"

	routeHealth   = "GET /health"
	routeClone    = "POST /clone"
	routeGenerate = "GET /generate"
	routeFile     = "GET /file"
	routeFileInfo = "GET /file/info"
	routeCleanup  = "DELETE /cleanup"
	routeMetrics  = "GET /metrics"

	errorRateLimited   = "rate limit exceeded"
	errorDecodeBody    = "request body is not valid JSON"
	errorEncodeFormat  = "encode response: %v"
	errorListenFormat  = "listen on %s: %w"
	errorServeFormat   = "serve HTTP: %w"
	errorShutdownFmt   = "shutdown HTTP: %w"
	errorStreamAborted = "stream aborted"
)

// Repositories is the set of operations the HTTP layer dispatches to.
type Repositories interface {
	Acquire(ctx context.Context, reference string, branch string, credential string) (string, error)
	Analyze(ctx context.Context, handle string) (types.AnalysisReport, error)
	OpenStream(ctx context.Context, handle string, relativePath string) (*service.FileStream, error)
	FileInfo(ctx context.Context, handle string, relativePath string) (types.FileInfo, error)
	Cleanup(handle string) (bool, error)
}

// Config defines runtime options for the HTTP server.
type Config struct {
	Address           string
	ShutdownTimeout   time.Duration
	RequestsPerMinute int
	Burst             int
	// TrustProxyHeaders keys rate limiting on X-Forwarded-For and X-Real-IP.
	// Enable it only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
	Credential        string
	Version           string
}

// Server routes HTTP requests to a Repositories implementation.
type Server struct {
	config       Config
	repositories Repositories
	logger       *zap.Logger
	metrics      *metrics.Metrics
	limiters     *clientLimiters
	startedAt    time.Time
}

// NewServer creates a Server with defaults applied. A non-positive
// RequestsPerMinute disables rate limiting.
func NewServer(config Config, repositories Repositories, logger *zap.Logger, collectors *metrics.Metrics) *Server {
	normalized := config
	if normalized.Address == "" {
		normalized.Address = defaultListenAddress
	}
	if normalized.ShutdownTimeout <= 0 {
		normalized.ShutdownTimeout = defaultShutdownDuration
	}
	if normalized.Burst <= 0 {
		normalized.Burst = defaultBurst
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiters *clientLimiters
	if normalized.RequestsPerMinute > 0 {
		limiters = newClientLimiters(rate.Limit(float64(normalized.RequestsPerMinute)/60), normalized.Burst)
	}
	return &Server{
		config:       normalized,
		repositories: repositories,
		logger:       logger,
		metrics:      collectors,
		limiters:     limiters,
		startedAt:    time.Now(),
	}
}

// Handler returns the routed handler. The metrics endpoint is not rate limited.
func (server *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc(routeHealth, server.handleHealth)
	api.HandleFunc(routeClone, server.handleClone)
	api.HandleFunc(routeGenerate, server.handleGenerate)
	api.HandleFunc(routeFile, server.handleFile)
	api.HandleFunc(routeFileInfo, server.handleFileInfo)
	api.HandleFunc(routeCleanup, server.handleCleanup)

	router := http.NewServeMux()
	router.Handle("/", server.rateLimited(api))
	if server.metrics != nil {
		router.Handle(routeMetrics, server.metrics.Handler())
	}
	return router
}

// Run starts the server and blocks until ctx is canceled.
// The notify callback receives the bound address once the listener is active.
func (server *Server) Run(ctx context.Context, notify func(string)) error {
	listener, listenErr := net.Listen("tcp", server.config.Address)
	if listenErr != nil {
		return fmt.Errorf(errorListenFormat, server.config.Address, listenErr)
	}
	actualAddress := listener.Addr().String()

	httpServer := &http.Server{Handler: server.Handler(), ReadHeaderTimeout: 10 * time.Second}
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		serveErr := httpServer.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf(errorServeFormat, serveErr)
		}
		return nil
	})

	server.logger.Info("listening", zap.String("address", actualAddress))
	if notify != nil {
		notify(actualAddress)
	}

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.config.ShutdownTimeout)
		defer cancel()
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if shutdownErr != nil && !errors.Is(shutdownErr, context.Canceled) && !errors.Is(shutdownErr, http.ErrServerClosed) {
			return fmt.Errorf(errorShutdownFmt, shutdownErr)
		}
		return nil
	})

	return group.Wait()
}

func (server *Server) handleHealth(writer http.ResponseWriter, request *http.Request) {
	server.writeJSON(writer, http.StatusOK, types.HealthResponse{
		Status:        statusHealthy,
		Version:       server.config.Version,
		UptimeSeconds: time.Since(server.startedAt).Seconds(),
	})
}

func (server *Server) handleClone(writer http.ResponseWriter, request *http.Request) {
	request.Body = http.MaxBytesReader(writer, request.Body, maximumRequestBodyBytes)
	var cloneRequest types.CloneRequest
	if decodeErr := json.NewDecoder(request.Body).Decode(&cloneRequest); decodeErr != nil {
		server.writeError(writer, failure.New(failure.KindInvalidReference, errorDecodeBody, decodeErr))
		return
	}
	handle, acquireErr := server.repositories.Acquire(request.Context(), cloneRequest.RepositoryURL, cloneRequest.Branch, server.config.Credential)
	if acquireErr != nil {
		server.writeError(writer, acquireErr)
		return
	}
	server.writeJSON(writer, http.StatusOK, types.CloneResponse{RepositoryID: handle, Message: cloneSucceededMessage})
}

func (server *Server) handleGenerate(writer http.ResponseWriter, request *http.Request) {
	report, analyzeErr := server.repositories.Analyze(request.Context(), request.URL.Query().Get(queryRepositoryID))
	if analyzeErr != nil {
		server.writeError(writer, analyzeErr)
		return
	}
	server.writeJSON(writer, http.StatusOK, report)
}

func (server *Server) handleFile(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	fileStream, openErr := server.repositories.OpenStream(request.Context(), query.Get(queryRepositoryID), query.Get(queryPath))
	if openErr != nil {
		server.writeError(writer, openErr)
		return
	}
	defer fileStream.Close()

	writer.Header().Set(headerContentType, mimeTypeBinary)
	writer.Header().Set(headerContentDisposition, mime.FormatMediaType(dispositionAttachment, map[string]string{"filename": fileStream.Name}))
	writer.Header().Set(headerContentLength, fmt.Sprint(fileStream.Size))
	writer.WriteHeader(http.StatusOK)
	if _, streamErr := fileStream.WriteTo(request.Context(), writer); streamErr != nil {
		server.logger.Warn(errorStreamAborted, zap.String("name", fileStream.Name), zap.Error(streamErr))
	}
}

func (server *Server) handleFileInfo(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	information, infoErr := server.repositories.FileInfo(request.Context(), query.Get(queryRepositoryID), query.Get(queryPath))
	if infoErr != nil {
		server.writeError(writer, infoErr)
		return
	}
	server.writeJSON(writer, http.StatusOK, information)
}

func (server *Server) handleCleanup(writer http.ResponseWriter, request *http.Request) {
	removed, cleanupErr := server.repositories.Cleanup(request.URL.Query().Get(queryRepositoryID))
	if cleanupErr != nil {
		server.writeError(writer, cleanupErr)
		return
	}
	server.writeJSON(writer, http.StatusOK, types.CleanupResponse{Success: removed})
}

func (server *Server) rateLimited(next http.Handler) http.Handler {
	if server.limiters == nil {
		return next
	}
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		clientIP := clientAddress(request, server.config.TrustProxyHeaders)
		if !server.limiters.get(clientIP).Allow() {
			if server.metrics != nil {
				server.metrics.RateLimitedRequests.Inc()
			}
			server.logger.Warn(errorRateLimited, zap.String("ip", clientIP))
			server.writeJSON(writer, http.StatusTooManyRequests, types.ErrorResponse{Error: errorRateLimited, Kind: "rate_limited"})
			return
		}
		next.ServeHTTP(writer, request)
	})
}

func (server *Server) writeError(writer http.ResponseWriter, err error) {
	kind := failure.KindOf(err)
	statusCode := StatusCode(kind)
	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		server.logger.Error("request failed", zap.Error(err))
		message = http.StatusText(statusCode)
	}
	server.writeJSON(writer, statusCode, types.ErrorResponse{Error: message, Kind: string(kind)})
}

func (server *Server) writeJSON(writer http.ResponseWriter, statusCode int, payload interface{}) {
	var buffer bytes.Buffer
	if encodeErr := json.NewEncoder(&buffer).Encode(payload); encodeErr != nil {
		fallback := types.ErrorResponse{Error: fmt.Sprintf(errorEncodeFormat, encodeErr), Kind: string(failure.KindInternal)}
		writer.Header().Set(headerContentType, mimeTypeJSON)
		writer.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(writer).Encode(fallback)
		return
	}
	writer.Header().Set(headerContentType, mimeTypeJSON)
	writer.WriteHeader(statusCode)
	_, _ = writer.Write(buffer.Bytes())
}

// StatusCode maps a failure kind to its HTTP status.
func StatusCode(kind failure.Kind) int {
	switch kind {
	case failure.KindInvalidReference, failure.KindInvalidPath, failure.KindInvalidHandle, failure.KindInvalidTarget:
		return http.StatusBadRequest
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindAuthOrTransportFailure:
		return http.StatusBadGateway
	case failure.KindCloneFailure:
		return http.StatusUnprocessableEntity
	case failure.KindHandleBusy:
		return http.StatusConflict
	case failure.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// clientLimiters holds one token bucket per client address.
type clientLimiters struct {
	mutex       sync.Mutex
	limit       rate.Limit
	burst       int
	buckets     map[string]*rate.Limiter
	lastCleanup time.Time
}

func newClientLimiters(limit rate.Limit, burst int) *clientLimiters {
	return &clientLimiters{
		limit:       limit,
		burst:       burst,
		buckets:     make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

func (limiters *clientLimiters) get(address string) *rate.Limiter {
	limiters.mutex.Lock()
	defer limiters.mutex.Unlock()
	if time.Since(limiters.lastCleanup) > limiterResetInterval {
		limiters.buckets = make(map[string]*rate.Limiter)
		limiters.lastCleanup = time.Now()
	}
	limiter, exists := limiters.buckets[address]
	if !exists {
		limiter = rate.NewLimiter(limiters.limit, limiters.burst)
		limiters.buckets[address] = limiter
	}
	return limiter
}

// clientAddress returns the peer address, or the proxy-reported client when
// proxy headers are trusted.
func clientAddress(request *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if forwarded := request.Header.Get(headerForwardedFor); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
		if realIP := request.Header.Get(headerRealIP); realIP != "" {
			return strings.TrimSpace(realIP)
		}
	}
	if host, _, splitErr := net.SplitHostPort(request.RemoteAddr); splitErr == nil {
		return host
	}
	return request.RemoteAddr
}
