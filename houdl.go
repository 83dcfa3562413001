// Package houdl lists and downloads SideFX builds.
//
// A [Service] wires an authenticated API client to the build catalog and
// the downloader:
//
//	creds, _ := auth.NewCredentials(id, secret)
//	svc, err := houdl.New(creds)
//	defer svc.Close()
//
//	b, err := svc.Find(ctx, catalog.Query{Product: "houdini", Version: "21.0", Platform: "linux"}, 440)
//	desc, err := svc.Resolve(ctx, b, "houdini")
//	s, err := sink.Open(ctx, "/opt/builds", desc.Filename)
//	check, res, err := svc.Fetch(ctx, desc, s)
package houdl

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/houdl/api"
	"github.com/adamwoolhether/houdl/auth"
	"github.com/adamwoolhether/houdl/catalog"
	"github.com/adamwoolhether/houdl/client"
	"github.com/adamwoolhether/houdl/download"
	"github.com/adamwoolhether/houdl/sink"
	"github.com/adamwoolhether/houdl/verify"
)

const instrumentation = "github.com/adamwoolhether/houdl"

// Service is one authenticated session against the vendor.
type Service struct {
	session    *auth.Session
	catalog    *catalog.Catalog
	downloader *download.Downloader
	logger     *slog.Logger
}

// New builds a Service for creds. No request is made until one is needed.
func New(creds auth.Credentials, optFns ...Option) (*Service, error) {
	opts := serviceOpts{
		logger: slog.Default(),
		tp:     noop.NewTracerProvider(),
	}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying service option: %w", err)
		}
	}

	// Token and API requests share one client so a throttle covers both.
	apiHC, err := client.Build(opts.clientOptions(true)...)
	if err != nil {
		return nil, fmt.Errorf("building api client: %w", err)
	}
	streamHC, err := client.Build(opts.clientOptions(false)...)
	if err != nil {
		return nil, fmt.Errorf("building download client: %w", err)
	}

	sessOpts := []auth.Option{auth.WithLogger(opts.logger)}
	if opts.tokenURL != "" {
		sessOpts = append(sessOpts, auth.WithTokenURL(opts.tokenURL))
	}
	if opts.timeout != nil {
		sessOpts = append(sessOpts, auth.WithTimeout(*opts.timeout))
	}
	session, err := auth.NewSession(creds, apiHC, sessOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	tracer := opts.tp.Tracer(instrumentation)

	apiOpts := []api.Option{api.WithLogger(opts.logger), api.WithTracer(tracer)}
	if opts.apiURL != "" {
		apiOpts = append(apiOpts, api.WithEndpoint(opts.apiURL))
	}
	if opts.timeout != nil {
		apiOpts = append(apiOpts, api.WithTimeout(*opts.timeout))
	}
	caller, err := api.New(apiHC, session, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	dlOpts := []download.Option{download.WithLogger(opts.logger), download.WithTracer(tracer)}
	if opts.chunkSize > 0 {
		dlOpts = append(dlOpts, download.WithChunkSize(opts.chunkSize))
	}
	downloader, err := download.New(caller, streamHC, dlOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating downloader: %w", err)
	}

	return &Service{
		session:    session,
		catalog:    catalog.New(caller, catalog.WithLogger(opts.logger)),
		downloader: downloader,
		logger:     opts.logger,
	}, nil
}

func (o serviceOpts) clientOptions(throttled bool) []client.Option {
	opts := []client.Option{client.WithLogger(o.logger)}
	if o.rt != nil {
		opts = append(opts, client.WithTransport(o.rt))
	}
	if o.userAgent != "" {
		opts = append(opts, client.WithUserAgent(o.userAgent))
	}
	if throttled && o.throttle != nil {
		opts = append(opts, client.WithThrottle(o.throttle.RPS, o.throttle.Burst))
	}

	return opts
}

// List returns the builds matching q. See [catalog.Catalog.List].
func (s *Service) List(ctx context.Context, q catalog.Query) (iter.Seq[catalog.Build], error) {
	return s.catalog.List(ctx, q)
}

// Find returns the build with the given number from the listing for q.
func (s *Service) Find(ctx context.Context, q catalog.Query, number catalog.BuildNumber) (catalog.Build, error) {
	return s.catalog.Find(ctx, q, number)
}

// Resolve returns the descriptor for package pkg of b.
func (s *Service) Resolve(ctx context.Context, b catalog.Build, pkg string) (download.Descriptor, error) {
	return s.downloader.Resolve(ctx, b, pkg)
}

// Fetch streams desc into dst, committing dst when the stream completes
// and aborting it otherwise, then checks the digest against the expected MD5.
//
// A checksum mismatch is not an error: dst stays committed and the
// returned [verify.Result] reports [verify.Mismatch].
func (s *Service) Fetch(ctx context.Context, desc download.Descriptor, dst sink.Sink, opts ...download.StreamOption) (verify.Result, download.Result, error) {
	res, err := s.downloader.Stream(ctx, desc, dst, opts...)
	if err != nil {
		if abortErr := dst.Abort(); abortErr != nil && !errors.Is(abortErr, sink.ErrFinished) {
			s.logger.Error("aborting sink", "location", dst.Location(), "error", abortErr)
		}
		return verify.Result{}, res, err
	}

	if err := dst.Commit(); err != nil {
		return verify.Result{}, res, fmt.Errorf("committing %s: %w", dst.Location(), err)
	}

	check := verify.Verify(res.Digest, desc.ExpectedMD5)
	if !check.OK() {
		s.logger.Warn("checksum mismatch", "location", dst.Location(), "expected", check.Expected, "computed", check.Computed)
	} else {
		s.logger.Info("artifact verified", "location", dst.Location(), "md5", check.Computed, "bytes", res.Bytes)
	}

	return check, res, nil
}

// Close ends the session. Later calls fail with [auth.ErrSessionClosed].
func (s *Service) Close() error {
	return s.session.Close()
}
