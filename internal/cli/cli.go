// Package cli provides the command line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/reposcope/internal/acquire"
	"github.com/temirov/reposcope/internal/config"
	"github.com/temirov/reposcope/internal/metrics"
	"github.com/temirov/reposcope/internal/output"
	"github.com/temirov/reposcope/internal/service"
	"github.com/temirov/reposcope/internal/services/clipboard"
	"github.com/temirov/reposcope/internal/services/httpapi"
	"github.com/temirov/reposcope/internal/types"
	"github.com/temirov/reposcope/internal/utils"
)

const (
	configFlagName   = "config"
	logLevelFlagName = "log-level"
	branchFlagName   = "branch"
	copyFlagName     = "copy"
	formatFlagName   = "format"
	globalFlagName   = "global"
	forceFlagName    = "force"
	addressFlagName  = "address"

	versionTemplate = "reposcope version: {{.Version}}\n"
	rootUse         = "reposcope"
	rootShort       = "reposcope provisions, analyzes and serves repository checkouts"
	rootLong        = `reposcope clones a remote repository into an isolated directory addressed by a
random handle, reports line counts, languages and structure for it, and streams
individual files back. Run "reposcope serve" to expose the same operations over HTTP.`

	serveUse   = "serve"
	serveShort = "run the HTTP API"
	cloneUse   = "clone <owner/name | https URL>"
	cloneShort = "clone a repository and print its handle"
	// cloneExample demonstrates clone command usage.
	cloneExample = `  # Clone the default branch and copy the handle
  reposcope clone octocat/Hello-World --copy

  # Clone a specific branch
  reposcope clone https://github.com/octocat/Hello-World --branch test`
	analyzeUse   = "analyze <handle>"
	analyzeShort = "report lines, languages and structure"
	catUse       = "cat <handle> <path>"
	catShort     = "stream one file to standard output"
	infoUse      = "info <handle> <path>"
	infoShort    = "describe one file"
	cleanupUse   = "cleanup <handle>"
	cleanupShort = "remove a cloned repository"
	initUse      = "init"
	initShort    = "write a default configuration file"

	configFlagDescription   = "configuration file (default ./config.yaml)"
	logLevelFlagDescription = "log level override (debug, info, warn, error)"
	branchFlagDescription   = "branch to clone before falling back"
	copyFlagDescription     = "copy the handle to the clipboard"
	formatFlagDescription   = "output format (json or raw)"
	globalFlagDescription   = "write ~/.reposcope/config.yaml instead of ./config.yaml"
	forceFlagDescription    = "overwrite an existing configuration file"
	addressFlagDescription  = "listen address override"

	cleanupRemovedMessage  = "removed %s\n"
	cleanupMissingMessage  = "nothing to remove for %s\n"
	initWrittenMessage     = "configuration written to %s\n"
	listeningMessage       = "listening on http://%s\n"
	invalidFormatMessage   = "invalid format value '%s'"
	clipboardErrorFormat   = "copy handle to clipboard: %w"
	errorLoadConfiguration = "load configuration: %w"
	errorBuildLogger       = "build logger: %w"
)

// Dependencies carries collaborators that tests replace.
type Dependencies struct {
	Clipboard  clipboard.Copier
	Strategies []acquire.Strategy
}

// application is the state shared by subcommands once configuration is loaded.
type application struct {
	dependencies  Dependencies
	configPath    string
	logLevel      string
	configuration config.ApplicationConfiguration
	logger        *zap.Logger
	metrics       *metrics.Metrics
	service       *service.Service
}

// Execute runs the reposcope application.
func Execute() error {
	return Run(context.Background(), Dependencies{Clipboard: clipboard.NewService()}, os.Args[1:], os.Stdout, os.Stderr)
}

// NewRootCommand builds the root Cobra command and every subcommand.
func NewRootCommand(dependencies Dependencies) *cobra.Command {
	app := &application{dependencies: dependencies}

	rootCommand := &cobra.Command{
		Use:           rootUse,
		Short:         rootShort,
		Long:          rootLong,
		Version:       utils.GetApplicationVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
		PersistentPostRun: func(command *cobra.Command, arguments []string) {
			if app.logger != nil {
				_ = app.logger.Sync()
			}
		},
	}
	rootCommand.SetVersionTemplate(versionTemplate)
	rootCommand.PersistentFlags().StringVar(&app.configPath, configFlagName, "", configFlagDescription)
	rootCommand.PersistentFlags().StringVar(&app.logLevel, logLevelFlagName, "", logLevelFlagDescription)
	rootCommand.AddCommand(
		app.serveCommand(),
		app.cloneCommand(),
		app.analyzeCommand(),
		app.catCommand(),
		app.infoCommand(),
		app.cleanupCommand(),
		initCommand(),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

// withService loads configuration before run so that help and init never
// touch the storage directories.
func (app *application) withService(run func(command *cobra.Command, arguments []string) error) func(*cobra.Command, []string) error {
	return func(command *cobra.Command, arguments []string) error {
		if loadError := app.load(); loadError != nil {
			return loadError
		}
		return run(command, arguments)
	}
}

// load reads configuration and builds the logger, metrics and service.
func (app *application) load() error {
	configuration, loadError := config.LoadApplicationConfiguration(config.LoadOptions{ExplicitFilePath: app.configPath})
	if loadError != nil {
		return fmt.Errorf(errorLoadConfiguration, loadError)
	}
	level := configuration.LogLevel
	if app.logLevel != "" {
		level = app.logLevel
	}
	logger, loggerError := utils.NewApplicationLogger(level)
	if loggerError != nil {
		return fmt.Errorf(errorBuildLogger, loggerError)
	}
	if configuration.Credentials.GitHubToken != "" {
		logger.Debug("clone credential configured", utils.RedactedString("credential", configuration.Credentials.GitHubToken))
	}
	collectors := metrics.New()
	repositoryService, serviceError := service.New(serviceConfig(configuration, app.dependencies.Strategies), logger, collectors)
	if serviceError != nil {
		return serviceError
	}
	app.configuration = configuration
	app.logger = logger
	app.metrics = collectors
	app.service = repositoryService
	return nil
}

// serviceConfig projects application configuration onto the service.
func serviceConfig(configuration config.ApplicationConfiguration, strategies []acquire.Strategy) service.Config {
	return service.Config{
		BaseDirectory:    configuration.Storage.BaseDirectory,
		LockDirectory:    configuration.Storage.LockDirectory,
		CloneTimeout:     configuration.Clone.Timeout,
		DefaultBranch:    configuration.Clone.DefaultBranch,
		FallbackBranches: configuration.Clone.FallbackBranches,
		Strategies:       strategies,
		MaxDepth:         configuration.Analysis.MaxDepth,
		AnalysisWorkers:  configuration.Analysis.Workers,
		ExcludePatterns:  configuration.Analysis.Exclude,
		ChunkSize:        configuration.Stream.ChunkSize,
		Workers:          configuration.Service.Workers,
	}
}

func (app *application) serveCommand() *cobra.Command {
	var addressOverride string
	serveCommand := &cobra.Command{
		Use:   serveUse,
		Short: serveShort,
		Args:  cobra.NoArgs,
		RunE: app.withService(func(command *cobra.Command, arguments []string) error {
			serverConfiguration := app.configuration.Server
			if addressOverride != "" {
				serverConfiguration.Address = addressOverride
			}
			server := httpapi.NewServer(httpapi.Config{
				Address:           serverConfiguration.Address,
				ShutdownTimeout:   serverConfiguration.ShutdownTimeout,
				RequestsPerMinute: serverConfiguration.RequestsPerMinute,
				Burst:             serverConfiguration.Burst,
				TrustProxyHeaders: serverConfiguration.TrustProxyHeaders,
				Credential:        app.configuration.Credentials.GitHubToken,
				Version:           utils.GetApplicationVersion(),
			}, app.service, app.logger.Named("http"), app.metrics)

			ctx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Run(ctx, func(address string) {
				fmt.Fprintf(command.OutOrStdout(), listeningMessage, address)
			})
		}),
	}
	serveCommand.Flags().StringVar(&addressOverride, addressFlagName, "", addressFlagDescription)
	return serveCommand
}

func (app *application) cloneCommand() *cobra.Command {
	var branch string
	var copyHandle bool
	cloneCommand := &cobra.Command{
		Use:     cloneUse,
		Short:   cloneShort,
		Example: cloneExample,
		Args:    cobra.ExactArgs(1),
		RunE: app.withService(func(command *cobra.Command, arguments []string) error {
			handle, acquireError := app.service.Acquire(command.Context(), arguments[0], branch, app.configuration.Credentials.GitHubToken)
			if acquireError != nil {
				return acquireError
			}
			fmt.Fprintln(command.OutOrStdout(), handle)
			if copyHandle && app.dependencies.Clipboard != nil {
				if copyError := app.dependencies.Clipboard.Copy(handle); copyError != nil {
					return fmt.Errorf(clipboardErrorFormat, copyError)
				}
			}
			return nil
		}),
	}
	cloneCommand.Flags().StringVar(&branch, branchFlagName, "", branchFlagDescription)
	registerBooleanFlag(cloneCommand.Flags(), &copyHandle, copyFlagName, false, copyFlagDescription)
	return cloneCommand
}

func (app *application) analyzeCommand() *cobra.Command {
	var outputFormat string
	analyzeCommand := &cobra.Command{
		Use:   analyzeUse,
		Short: analyzeShort,
		Args:  cobra.ExactArgs(1),
		RunE: app.withService(func(command *cobra.Command, arguments []string) error {
			format, formatError := normalizeFormat(outputFormat)
			if formatError != nil {
				return formatError
			}
			report, analyzeError := app.service.Analyze(command.Context(), arguments[0])
			if analyzeError != nil {
				return analyzeError
			}
			return output.Render(command.OutOrStdout(), format, report)
		}),
	}
	analyzeCommand.Flags().StringVar(&outputFormat, formatFlagName, types.FormatJSON, formatFlagDescription)
	return analyzeCommand
}

func (app *application) catCommand() *cobra.Command {
	return &cobra.Command{
		Use:   catUse,
		Short: catShort,
		Args:  cobra.ExactArgs(2),
		RunE: app.withService(func(command *cobra.Command, arguments []string) error {
			fileStream, openError := app.service.OpenStream(command.Context(), arguments[0], arguments[1])
			if openError != nil {
				return openError
			}
			defer fileStream.Close()
			_, streamError := fileStream.WriteTo(command.Context(), command.OutOrStdout())
			return streamError
		}),
	}
}

func (app *application) infoCommand() *cobra.Command {
	var outputFormat string
	infoCommand := &cobra.Command{
		Use:   infoUse,
		Short: infoShort,
		Args:  cobra.ExactArgs(2),
		RunE: app.withService(func(command *cobra.Command, arguments []string) error {
			format, formatError := normalizeFormat(outputFormat)
			if formatError != nil {
				return formatError
			}
			information, infoError := app.service.FileInfo(command.Context(), arguments[0], arguments[1])
			if infoError != nil {
				return infoError
			}
			return output.Render(command.OutOrStdout(), format, information)
		}),
	}
	infoCommand.Flags().StringVar(&outputFormat, formatFlagName, types.FormatRaw, formatFlagDescription)
	return infoCommand
}

func (app *application) cleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   cleanupUse,
		Short: cleanupShort,
		Args:  cobra.ExactArgs(1),
		RunE: app.withService(func(command *cobra.Command, arguments []string) error {
			removed, cleanupError := app.service.Cleanup(arguments[0])
			if cleanupError != nil {
				return cleanupError
			}
			if removed {
				fmt.Fprintf(command.OutOrStdout(), cleanupRemovedMessage, arguments[0])
				return nil
			}
			fmt.Fprintf(command.OutOrStdout(), cleanupMissingMessage, arguments[0])
			return nil
		}),
	}
}

func initCommand() *cobra.Command {
	var global bool
	var force bool
	initCommand := &cobra.Command{
		Use:         initUse,
		Short:       initShort,
		Args:        cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			target := config.InitTargetLocal
			if global {
				target = config.InitTargetGlobal
			}
			writtenPath, initError := config.InitializeConfiguration(config.InitOptions{Target: target, Force: force})
			if initError != nil {
				return initError
			}
			fmt.Fprintf(command.OutOrStdout(), initWrittenMessage, writtenPath)
			return nil
		},
	}
	registerBooleanFlag(initCommand.Flags(), &global, globalFlagName, false, globalFlagDescription)
	registerBooleanFlag(initCommand.Flags(), &force, forceFlagName, false, forceFlagDescription)
	return initCommand
}

func normalizeFormat(format string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(format))
	switch normalized {
	case types.FormatJSON, types.FormatRaw:
		return normalized, nil
	default:
		return "", fmt.Errorf(invalidFormatMessage, format)
	}
}

// Run executes the root command with arguments and the given output streams.
func Run(ctx context.Context, dependencies Dependencies, arguments []string, stdout io.Writer, stderr io.Writer) error {
	rootCommand := NewRootCommand(dependencies)
	rootCommand.SetArgs(normalizeBooleanFlagArguments(rootCommand, arguments))
	rootCommand.SetOut(stdout)
	rootCommand.SetErr(stderr)
	return rootCommand.ExecuteContext(ctx)
}
