package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vk/fmriflow/internal/app"
	"github.com/vk/fmriflow/internal/topology"
)

// EnvPrefix namespaces the environment variables bound to flags.
const EnvPrefix = "FMRIFLOW"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var parsed *app.Config
	cmd := newRootCmd(v, func(cfg *app.Config) { parsed = cfg })
	cmd.SetArgs(args)
	cmd.SetOut(output)
	cmd.SetErr(output)

	if err := cmd.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return nil, false, exitErr
		}
		return nil, false, usageError("%s", err)
	}
	if parsed == nil {
		// Help or version was printed.
		return nil, true, nil
	}
	slog.Debug("CLI parser finished successfully.", "config", parsed)
	return parsed, false, nil
}

func newRootCmd(v *viper.Viper, done func(*app.Config)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fmriflow <bids_dir> <output_dir> participant",
		Short: "Preprocess fMRI datasets organised in BIDS",
		Long: `fmriflow composes a preprocessing pipeline for every subject of a BIDS
dataset, choosing between a rich topology (sbref and fieldmap based
distortion correction) and a minimal one, and runs it with per-run
failure isolation. Derivatives, confound tables and HTML reports are
written to the output directory.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromViper(v, args)
			if err != nil {
				return err
			}
			done(cfg)
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usageError("%s\nRun '%s --help' for usage.", err, c.CommandPath())
	})

	f := cmd.Flags()
	f.StringSlice("participant-label", nil, "Subject labels to process, with or without the 'sub-' prefix. Default: all subjects.")
	f.String("workflow-type", topology.Auto, "Topology to build: "+strings.Join(topology.OverrideNames(), ", ")+".")
	f.Int("nthreads", 0, "Maximum threads across all concurrently running stages. 0 uses every CPU.")
	f.Int("mem-mb", 0, "Memory budget in MB for concurrently running stages. 0 is unlimited.")
	f.Int("ants-nthreads", 0, "Threads handed to multithreaded tools. 0 lets each stage decide.")
	f.Int("subjects", 0, "Subjects processed concurrently. Default 1.")
	f.Bool("skip-native", false, "Skip writing derivatives in native functional space.")
	f.Bool("skip-image-checks", false, "Only check that stage inputs exist, not that they are valid NIfTI volumes.")
	f.String("work-dir", "", "Directory for intermediate results. Default: <output_dir>/work.")
	f.Bool("resume", false, "Reuse stage results of earlier invocations sharing the work directory.")
	f.String("session-id", "", "Only process this session.")
	f.String("run-id", "", "Only process this run.")
	f.String("task-id", "", "Only process this task.")
	f.String("template", "", "Standard-space template image.")
	f.String("template-mask", "", "Brain mask of the template image.")
	f.String("use-plugin", "", "Execution plugin file (YAML).")
	f.StringSliceP("config", "c", nil, "HCL pipeline configuration file or directory. Repeatable.")
	f.Bool("write-graph", false, "Write the pipeline graph of every subject as DOT into <output_dir>/logs.")
	f.String("trace", "", "Write OpenTelemetry spans to this file.")
	f.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	f.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	_ = v.BindPFlags(f)
	return cmd
}

func configFromViper(v *viper.Viper, args []string) (*app.Config, error) {
	logFormat := strings.ToLower(v.GetString("log-format"))
	if logFormat != "text" && logFormat != "json" {
		return nil, usageError("invalid log-format: must be 'text' or 'json'")
	}
	logLevel := strings.ToLower(v.GetString("log-level"))
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}

	workflow := strings.ToLower(v.GetString("workflow-type"))
	if workflow == topology.Auto {
		workflow = ""
	}
	if _, err := topology.ParseOverride(workflow); err != nil {
		return nil, usageError("%s", err)
	}

	cfg, err := app.NewConfig(app.Config{
		BIDSDir:         args[0],
		OutputDir:       args[1],
		AnalysisLevel:   args[2],
		Participants:    v.GetStringSlice("participant-label"),
		WorkflowType:    workflow,
		SkipNative:      v.GetBool("skip-native"),
		SkipImageChecks: v.GetBool("skip-image-checks"),
		WorkDir:         v.GetString("work-dir"),
		Resume:          v.GetBool("resume"),
		SessionID:       v.GetString("session-id"),
		RunID:           v.GetString("run-id"),
		TaskID:          v.GetString("task-id"),
		Threads:         v.GetInt("nthreads"),
		MemoryMB:        v.GetInt("mem-mb"),
		ToolThreads:     v.GetInt("ants-nthreads"),
		Subjects:        v.GetInt("subjects"),
		Template:        v.GetString("template"),
		TemplateMask:    v.GetString("template-mask"),
		PluginFile:      v.GetString("use-plugin"),
		ConfigPaths:     v.GetStringSlice("config"),
		WriteGraph:      v.GetBool("write-graph"),
		TraceFile:       v.GetString("trace"),
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	})
	if err != nil {
		return nil, usageError("%s", err)
	}
	return cfg, nil
}
