package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/adamwoolhether/houdl/catalog"
	"github.com/adamwoolhether/houdl/config"
	"github.com/adamwoolhether/houdl/download"
	"github.com/adamwoolhether/houdl/internal/progress"
	"github.com/adamwoolhether/houdl/sink"
)

func runGet(ctx context.Context, g globals, args []string, std streams, env config.Env) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(std.err)

	version := fs.String("version", "", "Version as major.minor, e.g. 21.0 (required)")
	build := fs.Uint64("build", 0, "Build number, e.g. 440 (required)")
	output := fs.String("output", "", "Destination directory or bucket URL (default: current directory)")
	pkg := fs.String("package", "", "Package to download (default: the product)")
	silent := fs.Bool("silent", false, "Do not prompt or render progress")
	overwrite := fs.Bool("overwrite", false, "Replace an existing file of the same name")

	fs.Usage = func() {
		fmt.Fprintln(std.err, `Usage: houdl get -version V -build N [options]

Download one build, then verify its MD5 checksum.
A file whose checksum does not match is kept and reported with exit code 7.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if !catalog.ValidVersion(*version) {
		fmt.Fprintf(std.err, "Error: -version %q must be major.minor, e.g. 21.0\n", *version)
		return ExitInvalidArgs
	}
	if *build == 0 {
		fmt.Fprintln(std.err, "Error: -build is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg, svc, logger, code := setup(g, config.Config{Output: *output}, std, env)
	if code != ExitSuccess {
		return code
	}
	defer svc.Close()

	product, _ := catalog.ParseProduct(cfg.Product)
	platform, _ := catalog.ParsePlatform(cfg.Platform)

	q := catalog.Query{
		Product:      product,
		Version:      *version,
		Platform:     platform,
		IncludeDaily: true,
	}

	b, err := svc.Find(ctx, q, catalog.BuildNumber(*build))
	if err != nil {
		fmt.Fprintf(std.err, "Error: %v\n", err)
		return exitCode(err)
	}

	if *pkg == "" {
		*pkg = string(product)
	}

	desc, err := svc.Resolve(ctx, b, *pkg)
	if err != nil {
		fmt.Fprintf(std.err, "Error: %v\n", err)
		return exitCode(err)
	}

	if !*overwrite {
		location, exists, err := sink.Exists(ctx, cfg.Output, desc.Filename)
		if err != nil {
			fmt.Fprintf(std.err, "Error: %v\n", err)
			return ExitStorageError
		}
		if exists {
			fmt.Fprintf(std.out, "File already downloaded: %s\n", location)
			return ExitSuccess
		}
	}

	fmt.Fprintf(std.out, "%s %s (%s) -> %s\n", desc.Filename, b.FullVersion(), progress.FormatBytes(desc.Size), cfg.Output)

	if !*silent && !confirm(std, "Download? [y/N] ") {
		fmt.Fprintln(std.out, "Download cancelled.")
		return ExitSuccess
	}

	sinkOpts := []sink.Option{
		sink.WithLogger(logger),
		sink.WithMetadata(map[string]string{
			"md5":      desc.ExpectedMD5,
			"version":  b.FullVersion(),
			"platform": b.Platform,
		}),
	}
	if *overwrite {
		sinkOpts = append(sinkOpts, sink.WithOverwrite())
	}

	dst, err := sink.Open(ctx, cfg.Output, desc.Filename, sinkOpts...)
	if err != nil {
		fmt.Fprintf(std.err, "Error: %v\n", err)
		if code := exitCode(err); code != ExitGeneralError {
			return code
		}
		return ExitStorageError
	}

	var (
		renderer   *progress.Renderer
		streamOpts []download.StreamOption
	)
	if *silent {
		streamOpts = append(streamOpts, download.WithProgressLog())
	} else {
		renderer = progress.NewRenderer(std.err, desc.Filename)
		streamOpts = append(streamOpts, download.WithProgress(renderer.Observe))
	}

	check, res, err := svc.Fetch(ctx, desc, dst, streamOpts...)
	if renderer != nil {
		renderer.Finish()
	}
	if err != nil {
		fmt.Fprintf(std.err, "Error: %v\n", err)
		return exitCode(err)
	}

	fmt.Fprintln(std.out, check)
	fmt.Fprintf(std.out, "Saved %s (%s)\n", dst.Location(), progress.FormatBytes(res.Bytes))

	if !check.OK() {
		fmt.Fprintln(std.err, "Warning: checksum mismatch; the file was kept for inspection.")
		return ExitChecksumMismatch
	}

	return ExitSuccess
}

// confirm asks a yes/no question on std, defaulting to no.
func confirm(std streams, question string) bool {
	fmt.Fprint(std.err, question)

	sc := bufio.NewScanner(std.in)
	if !sc.Scan() {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(sc.Text())) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
