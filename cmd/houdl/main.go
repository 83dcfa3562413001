// Command houdl lists and downloads SideFX builds.
//
// Credentials come from -user-id and -user-secret, or from SESI_USER_ID and
// SESI_USER_SECRET. The -output of get may be a local directory or a bucket
// URL such as s3://builds?region=us-east-1, gs://builds or file:///srv/builds.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/adamwoolhether/houdl"
	"github.com/adamwoolhether/houdl/auth"
	"github.com/adamwoolhether/houdl/config"
	"github.com/adamwoolhether/houdl/download"
	"github.com/adamwoolhether/houdl/errs"
	"github.com/adamwoolhether/houdl/sink"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitAuthFailed       = 3
	ExitNotFound         = 4
	ExitNetworkError     = 5
	ExitAPIError         = 6
	ExitChecksumMismatch = 7
	ExitStorageError     = 8
	ExitCancelled        = 130
)

type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], streams{in: os.Stdin, out: os.Stdout, err: os.Stderr}, config.OSEnv{})
	stop()

	os.Exit(code)
}

// globals are the flags accepted before the command name.
type globals struct {
	configPath string
	override   config.Config
}

func run(ctx context.Context, args []string, std streams, env config.Env) int {
	fs := flag.NewFlagSet("houdl", flag.ContinueOnError)
	fs.SetOutput(std.err)

	var g globals
	fs.StringVar(&g.configPath, "config", "", "YAML config file")
	fs.StringVar(&g.override.Product, "product", "", "Product: houdini, houdini-launcher or launcher-iso")
	fs.StringVar(&g.override.Platform, "platform", "", "Platform: linux, win64, macos or macosx_arm64 (default: this system)")
	fs.StringVar(&g.override.UserID, "user-id", "", "API client ID (default $SESI_USER_ID)")
	fs.StringVar(&g.override.UserSecret, "user-secret", "", "API client secret (default $SESI_USER_SECRET)")
	fs.StringVar(&g.override.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.Usage = func() { printUsage(std.err, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	if fs.NArg() == 0 {
		printUsage(std.err, fs)
		return ExitInvalidArgs
	}

	command, cmdArgs := fs.Arg(0), fs.Args()[1:]

	switch command {
	case "list":
		return runList(ctx, g, cmdArgs, std, env)
	case "get":
		return runGet(ctx, g, cmdArgs, std, env)
	case "help":
		printUsage(std.err, fs)
		return ExitSuccess
	default:
		fmt.Fprintf(std.err, "Unknown command: %s\n", command)
		printUsage(std.err, fs)
		return ExitInvalidArgs
	}
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, `Usage: houdl [global options] <command> [options]

Commands:
  list   List builds of a version
  get    Download and verify one build

Run 'houdl <command> -h' for command-specific help.

Global options:`)
	fs.PrintDefaults()
}

// setup loads the layered configuration and builds the Service.
func setup(g globals, cmd config.Config, std streams, env config.Env) (config.Config, *houdl.Service, *slog.Logger, int) {
	cfg, err := config.Load(g.configPath, env)
	if err != nil {
		fmt.Fprintf(std.err, "Error: %v\n", err)
		return config.Config{}, nil, nil, ExitInvalidArgs
	}
	cfg = cfg.Merge(g.override).Merge(cmd)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(std.err, "Error: %v\n", err)
		if cfg.UserID == "" || cfg.UserSecret == "" {
			fmt.Fprintf(std.err, "Set -user-id and -user-secret, or %s and %s.\n", config.EnvUserID, config.EnvUserSecret)
		}
		return config.Config{}, nil, nil, ExitInvalidArgs
	}

	logger := slog.New(slog.NewTextHandler(std.err, &slog.HandlerOptions{Level: cfg.Level()}))
	logger.Debug("configuration loaded", "config", cfg)

	creds, err := auth.NewCredentials(cfg.UserID, cfg.UserSecret)
	if err != nil {
		fmt.Fprintf(std.err, "Error: %v\n", err)
		return config.Config{}, nil, nil, ExitInvalidArgs
	}

	opts := []houdl.Option{
		houdl.WithTokenURL(cfg.TokenURL),
		houdl.WithAPIURL(cfg.APIURL),
		houdl.WithTimeout(cfg.Timeout),
		houdl.WithUserAgent(cfg.UserAgent),
		houdl.WithChunkSize(int(cfg.ChunkSize)),
		houdl.WithLogger(logger),
	}
	if cfg.Throttle.RPS > 0 {
		opts = append(opts, houdl.WithThrottle(cfg.Throttle.RPS, cfg.Throttle.Burst))
	}

	svc, err := houdl.New(creds, opts...)
	if err != nil {
		fmt.Fprintf(std.err, "Error: %v\n", err)
		return config.Config{}, nil, nil, ExitInvalidArgs
	}

	return cfg, svc, logger, ExitSuccess
}

// exitCode maps an error to the exit code documented for it.
func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, download.ErrDownloadCancelled):
		return ExitCancelled
	case errors.Is(err, errs.ErrAuth):
		return ExitAuthFailed
	case errors.Is(err, errs.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, errs.ErrNetwork):
		return ExitNetworkError
	case errors.Is(err, errs.ErrAPI):
		return ExitAPIError
	case errors.Is(err, sink.ErrExists):
		return ExitStorageError
	default:
		return ExitGeneralError
	}
}
