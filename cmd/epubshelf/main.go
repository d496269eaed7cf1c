package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix             = "EPUBSHELF"
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultJobs           = 1
	defaultThumbnailWidth = 240
	defaultCacheSize      = 10
)

// newViper returns a config registry that reads EPUBSHELF_<FLAG> variables.
// Flags are bound when a subcommand reads its options.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func newRootCmd() *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:   "epubshelf",
		Short: "Ingest EPUB files into a browsable books directory",
		Long: `epubshelf unpacks EPUB ebooks into a books directory: one <name>_data
folder per book holding book.json (metadata, sanitized chapters, plain text and
table of contents) and the extracted images.

Every flag can also be set through an EPUBSHELF_<FLAG> environment variable,
for example EPUBSHELF_THUMBNAIL_WIDTH=320.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("log-level", defaultLogLevel, "Log level: debug|info|warn|error")
	cmd.PersistentFlags().String("log-format", defaultLogFormat, "Log format: text|json")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging (same as --log-level debug)")

	cmd.AddCommand(newIngestCmd(v), newListCmd(v), newShowCmd(v), newInspectCmd(v))
	return cmd
}

// loggingOptions are shared by every subcommand.
type loggingOptions struct {
	Logger *logrus.Logger
}

// readLoggingOptions binds cmd's flags into v and builds the logger.
func readLoggingOptions(v *viper.Viper, cmd *cobra.Command) (loggingOptions, error) {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return loggingOptions{}, fmt.Errorf("failed to bind flags: %w", err)
	}

	level := strings.ToLower(strings.TrimSpace(v.GetString("log-level")))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return loggingOptions{}, fmt.Errorf("--log-level must be one of debug|info|warn|error: %q", level)
	}
	if v.GetBool("verbose") {
		level = "debug"
	}

	format := strings.ToLower(strings.TrimSpace(v.GetString("log-format")))
	switch format {
	case "text", "json":
	default:
		return loggingOptions{}, fmt.Errorf("--log-format must be one of text|json: %q", format)
	}

	return loggingOptions{Logger: buildLogger(cmd.ErrOrStderr(), level, format)}, nil
}

func buildLogger(w io.Writer, level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
