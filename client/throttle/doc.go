// Package throttle provides an [http.RoundTripper] that rate-limits
// outbound HTTP requests using a token-bucket algorithm from
// [golang.org/x/time/rate].
//
// The vendor API publishes no rate limits, so houdl keeps its own calls
// (token exchange, listings, download resolution) well below anything a
// shared endpoint would object to:
//
//	rt, err := throttle.NewRoundTripper(
//		5, // requests per second
//		5, // burst capacity
//		func() *slog.Logger { return slog.Default() },
//		http.DefaultTransport,
//	)
//	httpClient := &http.Client{Transport: rt}
//
// When the bucket is empty, a request waits for its reservation or fails
// once its context ends, wrapping both [ErrWaitingFailed] and
// [ErrContextEnded].
package throttle
