package utils

// LoggerInitializationFailedMessageFormat reports a logger that could not be built.
const LoggerInitializationFailedMessageFormat = "failed to initialize logger: %w"

// ApplicationExecutionFailedMessage prefixes fatal command errors.
const ApplicationExecutionFailedMessage = "reposcope failed"

// ConfigFileName is the name of both the local and the global configuration file.
const ConfigFileName = "config.yaml"

// GlobalConfigDirectoryName is the directory under the user's home that holds global configuration.
const GlobalConfigDirectoryName = ".reposcope"

// EnvironmentPrefix prefixes every environment variable read by reposcope.
const EnvironmentPrefix = "REPOSCOPE"
