// Package client is the HTTP layer under the houdl packages. One [Client]
// is built per concern with [Build]: the token and API client is usually
// throttled, the download client is not.
//
//	c, err := client.Build(
//		client.WithUserAgent("houdl"),
//		client.WithThrottle(5, 5),
//	)
//
// Requests are built by [Client.Request] and sent with [Client.Do], which
// decodes JSON, or [Client.Open], which leaves the body for streaming:
//
//	req, err := c.Request(ctx, endpoint, http.MethodPost,
//		client.WithForm(form),
//		client.WithBearerToken(token),
//	)
//	err = c.Do(req, http.StatusOK, client.WithDestination(&out))
//
// A 401 or 403 yields an [UnexpectedStatusError] matching both
// [ErrAuthFailure] and [ErrUnexpectedStatusCode]. A request that gets no
// response at all matches [ErrTransport].
package client
