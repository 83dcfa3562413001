package main

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/adamwoolhether/houdl/catalog"
	"github.com/adamwoolhether/houdl/config"
)

func runList(ctx context.Context, g globals, args []string, std streams, env config.Env) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(std.err)

	version := fs.String("version", "", "Version as major.minor, e.g. 21.0 (default: all)")
	variant := fs.String("variant", "", "Exact build platform, e.g. linux_x86_64_gcc11.2")
	daily := fs.Bool("include-daily", false, "Include daily builds")

	fs.Usage = func() {
		fmt.Fprintln(std.err, `Usage: houdl list [options]

List the builds of the configured product and platform, newest first.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if *version != "" && !catalog.ValidVersion(*version) {
		fmt.Fprintf(std.err, "Error: version %q must be major.minor, e.g. 21.0\n", *version)
		return ExitInvalidArgs
	}

	cfg, svc, _, code := setup(g, config.Config{}, std, env)
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
		Variant:      *variant,
		IncludeDaily: *daily,
	}

	builds, err := svc.List(ctx, q)
	if err != nil {
		fmt.Fprintf(std.err, "Error: %v\n", err)
		return exitCode(err)
	}

	tw := tabwriter.NewWriter(std.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tDATE\tPLATFORM\tSTATUS\tRELEASE")

	n := 0
	for b := range builds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.FullVersion(), b.Date, b.Platform, b.Status, b.Release)
		n++
	}
	tw.Flush()

	if n == 0 {
		fmt.Fprintf(std.err, "No builds of %s for %s.\n", cfg.Product, cfg.Platform)
	}

	return ExitSuccess
}
