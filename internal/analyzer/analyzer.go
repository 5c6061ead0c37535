// Package analyzer produces line, file-type, language and structure reports
// for acquired repository trees.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/reposcope/internal/failure"
	"github.com/temirov/reposcope/internal/metrics"
	"github.com/temirov/reposcope/internal/types"
	"github.com/temirov/reposcope/internal/utils"
)

const (
	// DefaultMaxDepth bounds the structure tree.
	DefaultMaxDepth = 10

	errorRootMissingFormat  = "repository directory %s does not exist"
	errorRootNotDirectory   = "repository path %s is not a directory"
	errorWalkFormat         = "walking %s: %w"
	warningReadFileMessage  = "counting lines failed"
	warningWalkEntryMessage = "skipping unreadable entry"
)

// Config tunes an Analyzer.
type Config struct {
	MaxDepth      int
	Workers       int
	ExtraPatterns []string
}

// Analyzer computes AnalysisReports. It holds no per-repository state, so a
// single instance serves concurrent requests.
type Analyzer struct {
	rules    Rules
	maxDepth int
	workers  int
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// fileResult is the per-file outcome of line counting.
type fileResult struct {
	extension string
	lines     int
	language  string
}

// New constructs an Analyzer. Non-positive limits select defaults.
func New(configuration Config, logger *zap.Logger, collectors *metrics.Metrics) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxDepth := configuration.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	workers := configuration.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Analyzer{
		rules:    Rules{ExtraPatterns: utils.DeduplicatePatterns(configuration.ExtraPatterns)},
		maxDepth: maxDepth,
		workers:  workers,
		logger:   logger,
		metrics:  collectors,
	}
}

// Analyze walks rootPath and returns its report. A missing root yields a
// NotFound failure; unreadable subtrees and files are logged and skipped.
func (analyzer *Analyzer) Analyze(ctx context.Context, rootPath string) (types.AnalysisReport, error) {
	rootInfo, statError := os.Stat(rootPath)
	if statError != nil {
		if errors.Is(statError, fs.ErrNotExist) {
			return types.AnalysisReport{}, failure.New(failure.KindNotFound, fmt.Sprintf(errorRootMissingFormat, rootPath), nil)
		}
		return types.AnalysisReport{}, failure.New(failure.KindInternal, fmt.Sprintf(errorRootMissingFormat, rootPath), statError)
	}
	if !rootInfo.IsDir() {
		return types.AnalysisReport{}, failure.New(failure.KindNotFound, fmt.Sprintf(errorRootNotDirectory, rootPath), nil)
	}

	filePaths, collectError := analyzer.collectFiles(ctx, rootPath)
	if collectError != nil {
		return types.AnalysisReport{}, collectError
	}

	results := make([]fileResult, len(filePaths))
	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(analyzer.workers)
	for fileIndex, filePath := range filePaths {
		group.Go(func() error {
			if contextError := groupContext.Err(); contextError != nil {
				return contextError
			}
			results[fileIndex] = analyzer.analyzeFile(filePath)
			return nil
		})
	}
	if waitError := group.Wait(); waitError != nil {
		return types.AnalysisReport{}, waitError
	}
	if analyzer.metrics != nil {
		analyzer.metrics.AnalyzedFilesTotal.Add(float64(len(filePaths)))
	}

	report := aggregate(results)
	structure, structureError := structureBuilder{
		rootPath: rootPath,
		maxDepth: analyzer.maxDepth,
		rules:    analyzer.rules,
		logger:   analyzer.logger,
	}.build(ctx)
	if structureError != nil {
		return types.AnalysisReport{}, structureError
	}
	report.Structure = structure

	analyzer.logger.Info("analysis complete",
		zap.String("root", rootPath),
		zap.Int("total_lines", report.TotalLines),
		zap.Int("file_types", len(report.FileTypes)))
	return report, nil
}

// collectFiles lists every regular file that survives the rules.
func (analyzer *Analyzer) collectFiles(ctx context.Context, rootPath string) ([]string, error) {
	var filePaths []string
	walkError := filepath.WalkDir(rootPath, func(walkedPath string, directoryEntry fs.DirEntry, walkError error) error {
		if contextError := ctx.Err(); contextError != nil {
			return contextError
		}
		if walkError != nil {
			if walkedPath == rootPath {
				return walkError
			}
			analyzer.logger.Warn(warningWalkEntryMessage, zap.String("path", walkedPath), zap.Error(walkError))
			if directoryEntry != nil && directoryEntry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if walkedPath == rootPath {
			return nil
		}
		relativePath := utils.RelativePathOrSelf(walkedPath, rootPath)
		if directoryEntry.IsDir() {
			if analyzer.rules.ExcludeDirectory(relativePath) {
				return filepath.SkipDir
			}
			return nil
		}
		if !directoryEntry.Type().IsRegular() || analyzer.rules.ExcludeFile(relativePath) {
			return nil
		}
		filePaths = append(filePaths, walkedPath)
		return nil
	})
	if walkError != nil {
		if errors.Is(walkError, context.Canceled) || errors.Is(walkError, context.DeadlineExceeded) {
			return nil, walkError
		}
		return nil, fmt.Errorf(errorWalkFormat, rootPath, walkError)
	}
	return filePaths, nil
}

// analyzeFile classifies one file. Read failures count as zero lines.
func (analyzer *Analyzer) analyzeFile(filePath string) fileResult {
	extension := FileExtension(filePath)
	result := fileResult{extension: extension}
	if IsBinaryExtension(extension) {
		return result
	}
	content, readError := os.ReadFile(filePath)
	if readError != nil {
		analyzer.logger.Warn(warningReadFileMessage, zap.String("path", filePath), zap.Error(readError))
		return result
	}
	text, _ := DecodeText(content)
	result.lines = CountLines(text)
	if extension != "" {
		result.language, _ = LanguageForExtension(extension)
		return result
	}
	result.language, _ = LanguageForShebang(firstLine(text))
	return result
}

func aggregate(results []fileResult) types.AnalysisReport {
	report := types.AnalysisReport{
		FileTypes: make(map[string]int),
		Languages: make(map[string]float64),
	}
	languageLines := make(map[string]int)
	attributedLines := 0
	for _, result := range results {
		extensionKey := result.extension
		if extensionKey == "" {
			extensionKey = types.NoExtensionKey
		}
		report.FileTypes[extensionKey]++
		report.TotalLines += result.lines
		if result.language != "" {
			languageLines[result.language] += result.lines
			attributedLines += result.lines
		}
	}
	if attributedLines == 0 {
		return report
	}
	for language, lines := range languageLines {
		report.Languages[language] = roundPercentage(float64(lines) / float64(attributedLines) * 100)
	}
	return report
}

func roundPercentage(value float64) float64 {
	return math.Round(value*100) / 100
}
