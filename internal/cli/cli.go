// Package cli implements the modelweb command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/ekisa-team/modelweb/internal/converter"
	"github.com/ekisa-team/modelweb/internal/env"
	"github.com/ekisa-team/modelweb/internal/envvar"
	"github.com/ekisa-team/modelweb/internal/logger"
	"github.com/ekisa-team/modelweb/internal/tfjs"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// completionMessage is printed after a successful conversion.
const completionMessage = "Conversion complete."

// app carries what every command needs.
type app struct {
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
}

func (a *app) converter() *converter.Converter {
	return converter.New(converter.DefaultLoaders(), tfjs.NewStore(nil), converter.WithVersion(Version))
}

func (a *app) setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logFile := os.Getenv(envvar.ModelwebLogFile)
	slog.SetDefault(logger.New(env.FromEnv(),
		logger.WithConsole(a.stderr),
		logger.WithLevel(level),
		logger.WithLogToFile(logFile != ""),
		logger.WithLogFile(logFile),
	))
}

// Run parses args, executes the selected command and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{ctx: ctx, stdout: stdout, stderr: stderr}

	opts := &Options{}
	for _, arg := range args {
		if opts.Init(arg, a) {
			break
		}
	}

	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "modelweb"
	parser.CommandHandler = func(cmd flags.Commander, rest []string) error {
		a.setupLogging(opts.Verbose)
		if cmd == nil {
			return nil
		}
		return cmd.Execute(rest)
	}

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				fmt.Fprintln(stdout, flagsErr.Message)
				return 0
			}
			fmt.Fprintln(stderr, flagsErr.Message)
			return 2
		}

		slog.Error("Command failed", "error", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}
