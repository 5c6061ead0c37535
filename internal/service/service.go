// Package service is the explicitly constructed context that ties acquisition,
// analysis and streaming together behind handle and path validation.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/temirov/reposcope/internal/acquire"
	"github.com/temirov/reposcope/internal/analyzer"
	"github.com/temirov/reposcope/internal/failure"
	"github.com/temirov/reposcope/internal/metrics"
	"github.com/temirov/reposcope/internal/pathguard"
	"github.com/temirov/reposcope/internal/streamer"
	"github.com/temirov/reposcope/internal/types"
	"github.com/temirov/reposcope/internal/utils"
)

const (
	// DefaultWorkers bounds concurrent acquisitions and analyses.
	DefaultWorkers = 4

	operationAcquire  = "acquire"
	operationAnalyze  = "analyze"
	operationStream   = "stream"
	operationFileInfo = "file_info"
	operationCleanup  = "cleanup"
	outcomeSucceeded  = "ok"

	errorRepositoryMissingFormat = "repository %s does not exist"
	errorRemoveRepository        = "removing repository"
	errorWorkerSlot              = "waiting for a worker"
	errorInspectFileFormat       = "inspecting %s"
	errorNotRegularFileFormat    = "%s is not a regular file"
	errorMissingFileFormat       = "file %s does not exist"
	errorInvalidPathFormat       = "path %q is not a valid relative path"
)

// Config collects every tunable of the service.
type Config struct {
	BaseDirectory    string
	LockDirectory    string
	CloneTimeout     time.Duration
	DefaultBranch    string
	FallbackBranches []string
	Strategies       []acquire.Strategy
	MaxDepth         int
	AnalysisWorkers  int
	ExcludePatterns  []string
	ChunkSize        int
	Workers          int
}

// Service owns the repository base directory. It is safe for concurrent use.
type Service struct {
	acquirer  *acquire.Acquirer
	analyzer  *analyzer.Analyzer
	locks     *handleLocks
	pool      *semaphore.Weighted
	chunkSize int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// FileStream is an open, locked view of one repository file. Close releases
// the repository lock and must be called once the stream is no longer needed.
type FileStream struct {
	*streamer.Stream
	release func()
	metrics *metrics.Metrics
}

// WriteTo streams the file into writer and records the delivered bytes.
func (fileStream *FileStream) WriteTo(ctx context.Context, writer io.Writer) (int64, error) {
	written, writeError := fileStream.Stream.WriteTo(ctx, writer)
	if fileStream.metrics != nil {
		fileStream.metrics.StreamedBytesTotal.Add(float64(written))
	}
	return written, writeError
}

// Close releases the repository lock. It is safe to call more than once.
func (fileStream *FileStream) Close() error {
	if fileStream.release != nil {
		fileStream.release()
		fileStream.release = nil
	}
	return nil
}

// New builds a Service. A nil logger is replaced with a no-op logger and
// nil metrics disable instrumentation.
func New(configuration Config, logger *zap.Logger, collectors *metrics.Metrics) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	locks, locksError := newHandleLocks(configuration.LockDirectory)
	if locksError != nil {
		return nil, locksError
	}
	strategies := configuration.Strategies
	if strategies == nil {
		strategies = acquire.DefaultStrategies()
	}
	workers := configuration.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	chunkSize := configuration.ChunkSize
	if chunkSize <= 0 {
		chunkSize = streamer.DefaultChunkSize
	}
	return &Service{
		acquirer: acquire.New(acquire.Config{
			BaseDirectory:    configuration.BaseDirectory,
			CloneTimeout:     configuration.CloneTimeout,
			DefaultBranch:    configuration.DefaultBranch,
			FallbackBranches: configuration.FallbackBranches,
		}, strategies, logger.Named("acquire"), collectors),
		analyzer: analyzer.New(analyzer.Config{
			MaxDepth:      configuration.MaxDepth,
			Workers:       configuration.AnalysisWorkers,
			ExtraPatterns: configuration.ExcludePatterns,
		}, logger.Named("analyzer"), collectors),
		locks:     locks,
		pool:      semaphore.NewWeighted(int64(workers)),
		chunkSize: chunkSize,
		logger:    logger,
		metrics:   collectors,
	}, nil
}

// Acquire clones reference and returns the new repository handle.
func (service *Service) Acquire(ctx context.Context, reference string, branch string, credential string) (handle string, err error) {
	defer service.observe(operationAcquire, time.Now(), &err)
	if slotError := service.pool.Acquire(ctx, 1); slotError != nil {
		return "", failure.New(failure.KindCanceled, errorWorkerSlot, slotError)
	}
	defer service.pool.Release(1)

	handle, err = service.acquirer.Acquire(ctx, acquire.Request{Reference: reference, Branch: branch, Credential: credential})
	if err == nil && service.metrics != nil {
		service.metrics.ActiveRepositories.Inc()
	}
	return handle, err
}

// Analyze reports on the repository behind handle.
func (service *Service) Analyze(ctx context.Context, handle string) (report types.AnalysisReport, err error) {
	defer service.observe(operationAnalyze, time.Now(), &err)
	repositoryPath, pathError := service.existingRepository(handle)
	if pathError != nil {
		return types.AnalysisReport{}, pathError
	}
	if slotError := service.pool.Acquire(ctx, 1); slotError != nil {
		return types.AnalysisReport{}, failure.New(failure.KindCanceled, errorWorkerSlot, slotError)
	}
	defer service.pool.Release(1)

	release, lockError := service.locks.acquireShared(ctx, handle)
	if lockError != nil {
		return types.AnalysisReport{}, lockError
	}
	defer release()
	return service.analyzer.Analyze(ctx, repositoryPath)
}

// OpenStream validates relativePath inside the repository and opens it for
// chunked delivery. The caller must Close the returned stream.
func (service *Service) OpenStream(ctx context.Context, handle string, relativePath string) (fileStream *FileStream, err error) {
	defer service.observe(operationStream, time.Now(), &err)
	resolvedPath, release, resolveError := service.lockedFile(ctx, handle, relativePath)
	if resolveError != nil {
		return nil, resolveError
	}
	stream, openError := streamer.Open(resolvedPath, service.chunkSize)
	if openError != nil {
		release()
		return nil, openError
	}
	service.logger.Debug("streaming file", zap.String("handle", handle), zap.String("name", stream.Name), zap.Int64("size", stream.Size))
	return &FileStream{Stream: stream, release: release, metrics: service.metrics}, nil
}

// FileInfo describes one file inside the repository behind handle.
func (service *Service) FileInfo(ctx context.Context, handle string, relativePath string) (information types.FileInfo, err error) {
	defer service.observe(operationFileInfo, time.Now(), &err)
	resolvedPath, release, resolveError := service.lockedFile(ctx, handle, relativePath)
	if resolveError != nil {
		return types.FileInfo{}, resolveError
	}
	defer release()

	fileInformation, statError := os.Stat(resolvedPath)
	if statError != nil {
		if errors.Is(statError, fs.ErrNotExist) {
			return types.FileInfo{}, failure.Newf(failure.KindNotFound, errorMissingFileFormat, relativePath)
		}
		return types.FileInfo{}, failure.New(failure.KindInternal, fmt.Sprintf(errorInspectFileFormat, relativePath), statError)
	}
	if !fileInformation.Mode().IsRegular() {
		return types.FileInfo{}, failure.Newf(failure.KindInvalidTarget, errorNotRegularFileFormat, relativePath)
	}

	extension := analyzer.FileExtension(fileInformation.Name())
	language, known := analyzer.LanguageForExtension(extension)
	if !known {
		language = types.UnknownLanguage
	}
	return types.FileInfo{
		Name:          fileInformation.Name(),
		Path:          relativePath,
		Size:          fileInformation.Size(),
		HumanSize:     utils.FormatFileSize(fileInformation.Size()),
		Extension:     extension,
		MimeType:      utils.DetectMimeType(resolvedPath),
		IsBinary:      analyzer.IsBinaryExtension(extension) || utils.IsFileBinary(resolvedPath),
		Modified:      fileInformation.ModTime().Unix(),
		ModifiedLocal: utils.FormatTimestamp(fileInformation.ModTime()),
		Language:      language,
	}, nil
}

// Cleanup removes the repository behind handle. It reports false when the
// repository was already gone and fails with HandleBusy while a reader holds it.
func (service *Service) Cleanup(handle string) (removed bool, err error) {
	defer service.observe(operationCleanup, time.Now(), &err)
	if handleError := pathguard.CheckHandle(handle); handleError != nil {
		return false, handleError
	}
	repositoryPath := service.acquirer.RepositoryPath(handle)
	if !utils.DirectoryExists(repositoryPath) {
		service.logger.Warn("repository not found for cleanup", zap.String("handle", handle))
		return false, nil
	}

	fileLock, lockError := service.locks.tryExclusive(handle)
	if lockError != nil {
		return false, lockError
	}
	defer service.locks.releaseAndForget(fileLock)

	if !utils.DirectoryExists(repositoryPath) {
		return false, nil
	}
	if removeError := utils.RemoveTree(repositoryPath); removeError != nil {
		return false, failure.New(failure.KindInternal, errorRemoveRepository, removeError)
	}
	if service.metrics != nil {
		service.metrics.ActiveRepositories.Dec()
	}
	service.logger.Info("repository removed", zap.String("handle", handle))
	return true, nil
}

// RepositoryPath exposes the directory behind a validated handle.
func (service *Service) RepositoryPath(handle string) (string, error) {
	return service.existingRepository(handle)
}

// existingRepository validates handle and confirms its directory exists.
func (service *Service) existingRepository(handle string) (string, error) {
	if handleError := pathguard.CheckHandle(handle); handleError != nil {
		return "", handleError
	}
	repositoryPath := service.acquirer.RepositoryPath(handle)
	if !utils.DirectoryExists(repositoryPath) {
		return "", failure.Newf(failure.KindNotFound, errorRepositoryMissingFormat, handle)
	}
	return repositoryPath, nil
}

// lockedFile validates the handle and path and returns the canonical file
// path with a shared repository lock held.
func (service *Service) lockedFile(ctx context.Context, handle string, relativePath string) (string, func(), error) {
	repositoryPath, pathError := service.existingRepository(handle)
	if pathError != nil {
		return "", nil, pathError
	}
	if !pathguard.ValidateRelativePath(relativePath) {
		return "", nil, failure.Newf(failure.KindInvalidPath, errorInvalidPathFormat, relativePath)
	}
	release, lockError := service.locks.acquireShared(ctx, handle)
	if lockError != nil {
		return "", nil, lockError
	}
	if !utils.DirectoryExists(repositoryPath) {
		release()
		return "", nil, failure.Newf(failure.KindNotFound, errorRepositoryMissingFormat, handle)
	}
	resolvedPath, resolveError := pathguard.Resolve(repositoryPath, relativePath)
	if resolveError != nil {
		release()
		return "", nil, resolveError
	}
	return resolvedPath, release, nil
}

func (service *Service) observe(operation string, startedAt time.Time, operationError *error) {
	outcome := outcomeSucceeded
	if *operationError != nil {
		outcome = string(failure.KindOf(*operationError))
	}
	service.metrics.RecordOperation(operation, outcome, time.Since(startedAt).Seconds())
}
