// Package download resolves a build to its artifact and streams the
// artifact into a sink while computing its MD5.
//
// # Resolving
//
// [Downloader.Resolve] asks the API for the URL, filename and checksum of
// one package of a build:
//
//	desc, err := d.Resolve(ctx, build, "houdini")
//
// # Streaming
//
// [Downloader.Stream] pulls the body in bounded chunks. Each chunk updates
// the running digest, is written to the sink, then reported as progress:
//
//	res, err := d.Stream(ctx, desc, file, download.WithProgress(fn))
//
// Nothing is retried or resumed. Whatever reached the sink before a
// failure stays there for the caller to deal with.
package download

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/houdl/api"
	"github.com/adamwoolhether/houdl/catalog"
	"github.com/adamwoolhether/houdl/client"
	"github.com/adamwoolhether/houdl/errs"
	"github.com/adamwoolhether/houdl/validate"
	"github.com/adamwoolhether/houdl/verify"
)

// Caller performs one RPC call. [api.Client] satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params any, dest any) error
}

// Downloader resolves and streams artifacts.
type Downloader struct {
	caller    Caller
	hc        *client.Client
	chunkSize int
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New constructs a Downloader. caller resolves descriptors; hc fetches
// artifact bodies and should carry no overall timeout.
func New(caller Caller, hc *client.Client, optFns ...Option) (*Downloader, error) {
	if caller == nil {
		return nil, errors.New("caller must not be nil")
	}
	if hc == nil {
		return nil, errors.New("http client must not be nil")
	}

	d := &Downloader{
		caller:    caller,
		hc:        hc,
		chunkSize: DefaultChunkSize,
		logger:    hc.Logger(),
		tracer:    noop.NewTracerProvider().Tracer(""),
	}

	for _, opt := range optFns {
		if err := opt(d); err != nil {
			return nil, fmt.Errorf("applying download option: %w", err)
		}
	}

	return d, nil
}

type resolveParams struct {
	Product  string              `json:"product"`
	Platform catalog.Platform    `json:"platform"`
	Version  string              `json:"version"`
	Build    catalog.BuildNumber `json:"build"`
}

// Resolve returns the descriptor for package pkg of build b. It has no
// side effects; resolving the same build twice yields equal descriptors.
func (d *Downloader) Resolve(ctx context.Context, b catalog.Build, pkg string) (Descriptor, error) {
	if pkg == "" {
		pkg = string(catalog.ProductHoudini)
	}

	params := resolveParams{
		Product:  pkg,
		Platform: b.Family(),
		Version:  b.Version,
		Build:    b.Number,
	}

	notFound := &errs.NotFoundError{What: "artifact", Params: map[string]string{
		"package":  pkg,
		"platform": b.Platform,
		"version":  b.Version,
		"build":    b.Number.String(),
	}}

	var desc Descriptor
	if err := d.caller.Call(ctx, api.MethodBuildDownload, params, &desc); err != nil {
		var apiErr *errs.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return Descriptor{}, notFound
		}
		return Descriptor{}, fmt.Errorf("resolving %s %s: %w", pkg, b.FullVersion(), err)
	}

	if desc.empty() {
		return Descriptor{}, notFound
	}

	if err := validate.Check(desc); err != nil {
		return Descriptor{}, &errs.APIError{
			Endpoint: api.MethodBuildDownload,
			Status:   http.StatusOK,
			Err:      fmt.Errorf("malformed download descriptor: %w", err),
		}
	}

	if name := path.Base(desc.Filename); name != desc.Filename || name == "." || name == ".." {
		return Descriptor{}, &errs.APIError{
			Endpoint: api.MethodBuildDownload,
			Status:   http.StatusOK,
			Err:      fmt.Errorf("malformed download descriptor: unsafe filename %q", desc.Filename),
		}
	}

	desc.used = new(atomic.Bool)

	d.logger.Debug("artifact resolved", "package", pkg, "build", b.FullVersion(), "filename", desc.Filename, "size", desc.Size)

	return desc, nil
}

// Stream fetches desc and writes the body to sink, returning the MD5 of
// everything written.
//
// A transport failure, or a body that does not match its Content-Length,
// is an [errs.NetworkError]. Cancelling ctx yields [ErrDownloadCancelled]
// wrapping the context error. A failed sink write is returned wrapped.
func (d *Downloader) Stream(ctx context.Context, desc Descriptor, sink io.Writer, opts ...StreamOption) (Result, error) {
	if desc.used == nil {
		return Result{}, ErrInvalidDescriptor
	}
	if !desc.used.CompareAndSwap(false, true) {
		return Result{}, fmt.Errorf("%w: %s", ErrDescriptorUsed, desc.Filename)
	}

	var settings streamOpts
	for _, opt := range opts {
		opt(&settings)
	}

	ctx, span := d.tracer.Start(ctx, "download.stream",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("download.filename", desc.Filename),
			attribute.Int64("download.size", desc.Size),
		),
	)
	defer span.End()

	res, err := d.stream(ctx, desc, sink, settings)
	span.SetAttributes(attribute.Int64("download.bytes", res.Bytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	return res, nil
}

func (d *Downloader) stream(ctx context.Context, desc Descriptor, sink io.Writer, settings streamOpts) (Result, error) {
	u, err := url.Parse(desc.URL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}

	req, err := d.hc.Request(ctx, u, http.MethodGet)
	if err != nil {
		return Result{}, fmt.Errorf("building download request: %w", err)
	}

	start := time.Now()

	resp, err := d.hc.Open(req, http.StatusOK)
	if err != nil {
		return Result{}, d.openError(ctx, desc, err)
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	if total < 0 && desc.Size > 0 {
		total = desc.Size
	}

	var feed *progressFeed
	if settings.observer != nil {
		feed = startFeed(settings.observer)
		defer feed.stop()
		feed.publish(Progress{TotalBytes: total})
	}

	w := sink
	if settings.logged {
		w = &progressWriter{w: sink, logger: d.logger, name: desc.Filename, total: total, startTime: start}
	}

	body := &contextReader{ctx: ctx, r: resp.Body}
	digest := md5.New()
	buf := make([]byte, d.chunkSize)

	var received int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			digest.Write(buf[:n])

			if _, werr := w.Write(buf[:n]); werr != nil {
				return Result{Bytes: received, Elapsed: time.Since(start)}, fmt.Errorf("writing %s to sink: %w", desc.Filename, werr)
			}
			received += int64(n)

			if feed != nil {
				feed.publish(Progress{BytesReceived: received, TotalBytes: total, Elapsed: time.Since(start)})
			}
		}

		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			partial := Result{Bytes: received, Elapsed: time.Since(start)}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return partial, fmt.Errorf("%w: %w", ErrDownloadCancelled, ctxErr)
			}
			return partial, &errs.NetworkError{Endpoint: desc.URL, Err: rerr}
		}
	}

	res := Result{Digest: verify.Sum(digest), Bytes: received, Elapsed: time.Since(start)}

	if resp.ContentLength >= 0 && received != resp.ContentLength {
		return res, &errs.NetworkError{Endpoint: desc.URL, Err: &LengthError{Expected: resp.ContentLength, Received: received}}
	}

	d.logger.Debug("artifact streamed", "filename", desc.Filename, "bytes", received, "elapsed", res.Elapsed.Round(time.Millisecond))

	return res, nil
}

func (d *Downloader) openError(ctx context.Context, desc Descriptor, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrDownloadCancelled, ctxErr)
	}

	var statusErr *client.UnexpectedStatusError
	switch {
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		return &errs.NotFoundError{What: "artifact", Params: map[string]string{"url": desc.URL}}
	case errors.As(err, &statusErr) && errors.Is(err, client.ErrAuthFailure):
		return &errs.AuthError{Endpoint: desc.URL, Status: statusErr.StatusCode, Err: err}
	case errors.As(err, &statusErr):
		return &errs.APIError{Endpoint: desc.URL, Status: statusErr.StatusCode, Body: statusErr.Body, Err: client.ErrUnexpectedStatusCode}
	default:
		return &errs.NetworkError{Endpoint: desc.URL, Err: err}
	}
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}

	return cr.r.Read(p)
}
