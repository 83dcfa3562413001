// Package catalog lists the builds published for a product and selects
// among them.
//
// Listings keep the server's order, newest first. The server filters by
// platform family prefix only, so the catalog re-applies an exact family
// match (and an optional exact variant match) on its side.
package catalog

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/adamwoolhether/houdl/api"
	"github.com/adamwoolhether/houdl/errs"
	"github.com/adamwoolhether/houdl/validate"
)

// Caller performs one RPC call. [api.Client] satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params any, dest any) error
}

// Catalog lists builds through a Caller.
type Catalog struct {
	caller Caller
	logger *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Catalog)

// WithLogger injects a custom [slog.Logger] into the [Catalog].
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a Catalog.
func New(caller Caller, opts ...Option) *Catalog {
	c := &Catalog{
		caller: caller,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

type listParams struct {
	Product        Product  `json:"product"`
	Platform       Platform `json:"platform"`
	Version        string   `json:"version,omitempty"`
	OnlyProduction bool     `json:"only_production"`
}

// List fetches the builds matching q.
//
// The whole response is decoded and validated before anything is
// yielded: a single malformed record rejects the listing with an
// [errs.APIError]. The returned sequence can be ranged over once; later
// ranges yield nothing. No match is an empty sequence, not an error.
func (c *Catalog) List(ctx context.Context, q Query) (iter.Seq[Build], error) {
	if err := validate.Check(q); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	params := listParams{
		Product:        q.Product,
		Platform:       q.Platform,
		Version:        q.Version,
		OnlyProduction: !q.IncludeDaily,
	}

	var builds []Build
	if err := c.caller.Call(ctx, api.MethodListBuilds, params, &builds); err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}

	for i, b := range builds {
		if err := validate.Check(b); err != nil {
			return nil, &errs.APIError{
				Endpoint: api.MethodListBuilds,
				Status:   http.StatusOK,
				Err:      fmt.Errorf("malformed build record %d of %d: %w", i, len(builds), err),
			}
		}
	}

	c.logger.Debug("builds listed", "product", q.Product, "version", q.Version, "platform", q.Platform, "received", len(builds))

	var consumed atomic.Bool

	seq := func(yield func(Build) bool) {
		if !consumed.CompareAndSwap(false, true) {
			return
		}

		for _, b := range builds {
			if !q.matches(b) {
				continue
			}
			if !yield(b) {
				return
			}
		}
	}

	return seq, nil
}

// Find returns the first build in the listing for q with the given
// number, or an [errs.NotFoundError] carrying the query.
func (c *Catalog) Find(ctx context.Context, q Query, number BuildNumber) (Build, error) {
	builds, err := c.List(ctx, q)
	if err != nil {
		return Build{}, err
	}

	for b := range builds {
		if b.Number == number {
			return b, nil
		}
	}

	params := q.params()
	params["build"] = number.String()

	return Build{}, &errs.NotFoundError{What: "build", Params: params}
}
