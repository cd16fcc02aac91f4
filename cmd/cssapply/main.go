package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"cssapply/config"
	"cssapply/convert"
	"cssapply/misc"
	"cssapply/state"
)

const applyHelp = `%s
SOURCE:
    HTML document, directory (walked recursively, links are not followed),
    "archive.zip[/path/in/archive]" or "archive.zip/path/page.html".
    Stylesheets are resolved next to the document (inside archive for
    archived documents) unless --root is given.

DESTINATION:
    output directory, current working directory when absent
`

const dumpConfigHelp = `%s
DESTINATION:
    file to write configuration to, STDOUT when absent

Without --default the active configuration is written: embedded defaults
with values from --config file on top.
`

func main() {
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	err := newApp().Run(ctx, os.Args)
	stop()
	if err == nil {
		return
	}
	if !state.EnvFromContext(ctx).ErrorLogged {
		// log is either not ready yet or already closed
		fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
	}
	os.Exit(1)
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:            misc.GetAppName(),
		Usage:           "inlines CSS stylesheets into HTML documents",
		Version:         fmt.Sprintf("%s (%s) : %s", misc.GetVersion(), runtime.Version(), misc.GetGitHash()),
		HideHelpCommand: true,
		Before:          setup,
		After:           teardown,
		OnUsageError:    keepUsageError,
		ExitErrHandler:  logFailure,
		CommandNotFound: func(ctx context.Context, _ *cli.Command, name string) {
			state.EnvFromContext(ctx).Log.Warn("Unknown command, nothing to do", zap.String("command", name))
		},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "collect logs, configuration and results into report archive"},
		},
		Commands: []*cli.Command{applyCommand(), dumpConfigCommand()},
	}
}

func applyCommand() *cli.Command {
	return &cli.Command{
		Name:               "apply",
		Usage:              "Moves CSS rules of HTML document(s) into style attributes of their elements",
		ArgsUsage:          "SOURCE [DESTINATION]",
		CustomHelpTemplate: fmt.Sprintf(applyHelp, cli.CommandHelpTemplate),
		OnUsageError:       keepUsageError,
		Action:             convert.Run,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "css", Usage: "apply stylesheet from `FILE` before stylesheets of the document"},
			&cli.StringFlag{Name: "root", Usage: "resolve stylesheet references against `DIRECTORY`"},
			&cli.BoolFlag{Name: "preserve-class", Aliases: []string{"pc"}, Usage: "keep class attributes of elements"},
			&cli.BoolFlag{Name: "embed-images", Aliases: []string{"ei"}, Usage: "replace background images with data URLs"},
			&cli.StringFlag{Name: "charset", Usage: "read documents in IANA `ENCODING` ignoring their declarations"},
			&cli.BoolFlag{Name: "nodirs", Aliases: []string{"nd"}, Usage: "do not keep input directory structure in output"},
			&cli.BoolFlag{Name: "overwrite", Aliases: []string{"ow"}, Usage: "overwrite existing results"},
			&cli.StringFlag{Name: "force-zip-cp", Usage: "decode non UTF-8 file names in archives as IANA `ENCODING`"},
		},
	}
}

func dumpConfigCommand() *cli.Command {
	return &cli.Command{
		Name:               "dumpconfig",
		Usage:              "Dumps either default or actual configuration (YAML)",
		ArgsUsage:          "DESTINATION",
		CustomHelpTemplate: fmt.Sprintf(dumpConfigHelp, cli.CommandHelpTemplate),
		OnUsageError:       keepUsageError,
		Action:             dumpConfig,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
		},
	}
}

// setup loads configuration and prepares logging and debug report once
// command line is parsed.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.NArg() == 0 {
		return ctx, nil
	}
	env := state.EnvFromContext(ctx)

	var err error
	configFile := cmd.String("config")
	if env.Cfg, err = config.LoadConfiguration(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.Bool("debug") {
		if env.Rpt, err = env.Cfg.Reporting.Prepare(); err != nil {
			return ctx, fmt.Errorf("unable to prepare debug report: %w", err)
		}
		if configFile != "" {
			if data, err := config.Dump(env.Cfg); err == nil {
				env.Rpt.StoreData("config/"+filepath.Base(configFile), data)
			}
		}
	}
	if env.Log, err = env.Cfg.Logging.Prepare(env.Rpt); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.RedirectStdLog()

	env.Log.Debug("Program started", zap.Strings("args", os.Args), zap.String("ver", misc.GetVersion()),
		zap.String("runtime", runtime.Version()), zap.String("hash", misc.GetGitHash()))
	switch {
	case env.Rpt != nil:
		env.Log.Info("Creating debug report", zap.String("location", env.Rpt.Name()))
	case configFile == "":
		env.Log.Info("Using defaults (no configuration file)")
	}
	return ctx, nil
}

// teardown flushes logs, closes report and drops empty panic log. Errors go
// to stderr from here on since log is already closed.
func teardown(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	if env.Log != nil {
		env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	}
	env.RestoreStdLog()

	var err error
	if er := env.Rpt.Close(); er != nil {
		err = multierr.Append(err, fmt.Errorf("unable to close debug report: %w", er))
	}
	if env.Cfg != nil && env.Cfg.Logging.FileLogger.Destination != "" {
		debug.SetCrashOutput(nil, debug.CrashOptions{})
		err = multierr.Append(err, removeEmpty(env.Cfg.Logging.PanicLogName()))
	}
	return err
}

func removeEmpty(fname string) error {
	fi, err := os.Stat(fname)
	if err != nil || fi.Size() > 0 {
		return nil
	}
	if err := os.Remove(fname); err != nil {
		return fmt.Errorf("unable to remove empty panic log file '%s': %w", fname, err)
	}
	return nil
}

// logFailure runs before teardown, so command errors still reach the log.
func logFailure(ctx context.Context, _ *cli.Command, err error) {
	env := state.EnvFromContext(ctx)
	if env.Log == nil {
		return
	}
	env.Log.Error("Program ended with error", zap.Error(err))
	env.ErrorLogged = true
}

// keepUsageError leaves reporting of usage errors to logFailure and main.
func keepUsageError(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func dumpConfig(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	var (
		data []byte
		err  error
		kind = "actual"
	)
	if cmd.Bool("default") {
		kind = "default"
		data, err = config.Prepare()
	} else {
		data, err = config.Dump(env.Cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	fname := cmd.Args().Get(0)
	if fname == "" {
		env.Log.Info("Outputting configuration", zap.String("state", kind), zap.String("file", "STDOUT"))
		_, err = os.Stdout.Write(data)
	} else {
		env.Log.Info("Outputting configuration", zap.String("state", kind), zap.String("file", fname))
		err = os.WriteFile(fname, data, 0644)
	}
	if err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}
