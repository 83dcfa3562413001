package download_test

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/adamwoolhether/houdl/api"
	"github.com/adamwoolhether/houdl/catalog"
	"github.com/adamwoolhether/houdl/client"
	"github.com/adamwoolhether/houdl/download"
	"github.com/adamwoolhether/houdl/errs"
)

var build = catalog.Build{
	Date:     "2026-02-20",
	Product:  catalog.ProductHoudini,
	Platform: "linux_x86_64_gcc11.2",
	Version:  "20.5",
	Number:   410,
	Status:   catalog.StatusGood,
	Release:  catalog.ReleaseGold,
}

type fakeCaller struct {
	body   string
	err    error
	method string
	params map[string]any
}

func (f *fakeCaller) Call(_ context.Context, method string, params any, dest any) error {
	f.method = method

	b, _ := json.Marshal(params)
	f.params = nil
	json.Unmarshal(b, &f.params)

	if f.err != nil {
		return f.err
	}

	return json.Unmarshal([]byte(f.body), dest)
}

func newDownloader(t *testing.T, caller download.Caller, opts ...download.Option) *download.Downloader {
	t.Helper()

	hc, err := client.Build()
	if err != nil {
		t.Fatal(err)
	}

	d, err := download.New(caller, hc, opts...)
	if err != nil {
		t.Fatal(err)
	}

	return d
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func TestResolve(t *testing.T) {
	caller := &fakeCaller{body: `{
		"download_url": "https://cdn.example.com/houdini-20.5.410-linux_x86_64_gcc11.2.tar.gz",
		"filename": "houdini-20.5.410-linux_x86_64_gcc11.2.tar.gz",
		"hash": "5D41402ABC4B2A76B9719D911017C592",
		"size": 2147483648
	}`}
	d := newDownloader(t, caller)

	first, err := d.Resolve(t.Context(), build, "houdini")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	exp := download.Descriptor{
		URL:         "https://cdn.example.com/houdini-20.5.410-linux_x86_64_gcc11.2.tar.gz",
		Filename:    "houdini-20.5.410-linux_x86_64_gcc11.2.tar.gz",
		ExpectedMD5: "5D41402ABC4B2A76B9719D911017C592",
		Size:        2147483648,
	}
	if diff := cmp.Diff(exp, first, cmpopts.IgnoreUnexported(download.Descriptor{})); diff != "" {
		t.Errorf("unexpected descriptor (-want +got):\n%s", diff)
	}

	if caller.method != api.MethodBuildDownload {
		t.Errorf("unexpected method %q", caller.method)
	}
	expParams := map[string]any{"product": "houdini", "platform": "linux", "version": "20.5", "build": float64(410)}
	if diff := cmp.Diff(expParams, caller.params); diff != "" {
		t.Errorf("unexpected params (-want +got):\n%s", diff)
	}

	second, err := d.Resolve(t.Context(), build, "houdini")
	if err != nil {
		t.Fatal(err)
	}
	if first.ExpectedMD5 != second.ExpectedMD5 {
		t.Errorf("resolve must be idempotent: %s != %s", first.ExpectedMD5, second.ExpectedMD5)
	}
}

func TestResolve_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		err     error
		expKind error
	}{
		{name: "null result", body: `null`, expKind: errs.ErrNotFound},
		{name: "empty object", body: `{}`, expKind: errs.ErrNotFound},
		{name: "http 404", err: &errs.APIError{Endpoint: "api", Status: http.StatusNotFound}, expKind: errs.ErrNotFound},
		{name: "missing hash", body: `{"download_url":"https://x.example/a","filename":"a"}`, expKind: errs.ErrAPI},
		{name: "short hash", body: `{"download_url":"https://x.example/a","filename":"a","hash":"abc"}`, expKind: errs.ErrAPI},
		{name: "non hex hash", body: `{"download_url":"https://x.example/a","filename":"a","hash":"zz41402abc4b2a76b9719d911017c592"}`, expKind: errs.ErrAPI},
		{name: "unsafe filename", body: `{"download_url":"https://x.example/a","filename":"../a","hash":"5d41402abc4b2a76b9719d911017c592"}`, expKind: errs.ErrAPI},
		{name: "server error", err: &errs.APIError{Endpoint: "api", Status: http.StatusBadGateway}, expKind: errs.ErrAPI},
		{name: "auth", err: &errs.AuthError{Endpoint: "api", Status: http.StatusUnauthorized}, expKind: errs.ErrAuth},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := newDownloader(t, &fakeCaller{body: tc.body, err: tc.err})

			_, err := d.Resolve(t.Context(), build, "houdini")
			if !errors.Is(err, tc.expKind) {
				t.Fatalf("expected %v, got: %v", tc.expKind, err)
			}
		})
	}
}

func TestResolve_NotFoundCarriesParams(t *testing.T) {
	d := newDownloader(t, &fakeCaller{body: `null`})

	_, err := d.Resolve(t.Context(), build, "houdini-launcher")

	var nf *errs.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got: %v", err)
	}
	if nf.Params["package"] != "houdini-launcher" || nf.Params["platform"] != build.Platform {
		t.Errorf("unexpected params %v", nf.Params)
	}
}

// artifactServer serves payload at /artifact and records nothing else.
func artifactServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/artifact":
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			w.Write(payload)
		case "/chunked":
			w.Write(payload[:len(payload)/2])
			w.(http.Flusher).Flush()
			w.Write(payload[len(payload)/2:])
		case "/short":
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			w.Write(payload[:len(payload)/2])
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, "storage offline")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func descriptorFor(t *testing.T, rawURL string, payload []byte) download.Descriptor {
	t.Helper()

	desc, err := download.NewDescriptor(rawURL, "artifact.tar.gz", md5Hex(payload), int64(len(payload)))
	if err != nil {
		t.Fatal(err)
	}

	return desc
}

func randomPayload(n int) []byte {
	r := rand.New(rand.NewPCG(1, 2))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}

	return b
}

func TestStream_RoundTrip(t *testing.T) {
	payload := randomPayload(1<<20 + 123)
	srv := artifactServer(t, payload)

	for _, p := range []string{"/artifact", "/chunked"} {
		t.Run(p, func(t *testing.T) {
			d := newDownloader(t, &fakeCaller{}, download.WithChunkSize(4096))
			desc := descriptorFor(t, srv.URL+p, payload)

			var (
				mu      sync.Mutex
				updates []download.Progress
			)
			observer := func(p download.Progress) {
				mu.Lock()
				defer mu.Unlock()
				updates = append(updates, p)
			}

			var sink bytes.Buffer
			res, err := d.Stream(t.Context(), desc, &sink, download.WithProgress(observer))
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}

			if res.Bytes != int64(len(payload)) {
				t.Errorf("expected %d bytes, got %d", len(payload), res.Bytes)
			}
			if got := md5Hex(sink.Bytes()); res.Digest != got {
				t.Errorf("digest %s does not match sink contents %s", res.Digest, got)
			}
			if res.Digest != desc.ExpectedMD5 {
				t.Errorf("digest %s does not match payload %s", res.Digest, desc.ExpectedMD5)
			}

			mu.Lock()
			defer mu.Unlock()

			if len(updates) == 0 {
				t.Fatal("expected progress updates")
			}
			for i := 1; i < len(updates); i++ {
				if updates[i].BytesReceived < updates[i-1].BytesReceived {
					t.Fatalf("progress went backwards at %d: %d < %d", i, updates[i].BytesReceived, updates[i-1].BytesReceived)
				}
			}

			last := updates[len(updates)-1]
			if last.BytesReceived != int64(len(payload)) {
				t.Errorf("final update must report %d bytes, got %d", len(payload), last.BytesReceived)
			}
			if last.TotalBytes != int64(len(payload)) {
				t.Errorf("expected total %d, got %d", len(payload), last.TotalBytes)
			}
		})
	}
}

func TestStream_SingleUse(t *testing.T) {
	payload := []byte("hello")
	srv := artifactServer(t, payload)
	d := newDownloader(t, &fakeCaller{})

	desc := descriptorFor(t, srv.URL+"/artifact", payload)
	cpy := desc

	if _, err := d.Stream(t.Context(), desc, io.Discard); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !desc.Used() {
		t.Error("expected descriptor to be marked used")
	}

	if _, err := d.Stream(t.Context(), desc, io.Discard); !errors.Is(err, download.ErrDescriptorUsed) {
		t.Errorf("expected ErrDescriptorUsed, got: %v", err)
	}
	if _, err := d.Stream(t.Context(), cpy, io.Discard); !errors.Is(err, download.ErrDescriptorUsed) {
		t.Errorf("copies share single use, got: %v", err)
	}

	literal := download.Descriptor{URL: srv.URL + "/artifact", Filename: "a", ExpectedMD5: md5Hex(payload)}
	if _, err := d.Stream(t.Context(), literal, io.Discard); !errors.Is(err, download.ErrInvalidDescriptor) {
		t.Errorf("expected ErrInvalidDescriptor, got: %v", err)
	}
}

func TestStream_Failures(t *testing.T) {
	payload := randomPayload(64 << 10)
	srv := artifactServer(t, payload)

	testCases := []struct {
		path    string
		expKind error
	}{
		{path: "/short", expKind: errs.ErrNetwork},
		{path: "/missing", expKind: errs.ErrNotFound},
		{path: "/forbidden", expKind: errs.ErrAuth},
		{path: "/broken", expKind: errs.ErrAPI},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			d := newDownloader(t, &fakeCaller{})
			desc := descriptorFor(t, srv.URL+tc.path, payload)

			_, err := d.Stream(t.Context(), desc, io.Discard)
			if !errors.Is(err, tc.expKind) {
				t.Fatalf("expected %v, got: %v", tc.expKind, err)
			}
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		addr := dead.URL
		dead.Close()

		d := newDownloader(t, &fakeCaller{})
		desc := descriptorFor(t, addr+"/artifact", payload)

		if _, err := d.Stream(t.Context(), desc, io.Discard); !errors.Is(err, errs.ErrNetwork) {
			t.Fatalf("expected NetworkError, got: %v", err)
		}
	})
}

type failingSink struct {
	after int
	n     int
}

var errDiskFull = errors.New("disk full")

func (f *failingSink) Write(p []byte) (int, error) {
	if f.n+len(p) > f.after {
		return 0, errDiskFull
	}
	f.n += len(p)
	return len(p), nil
}

func TestStream_SinkFailure(t *testing.T) {
	payload := randomPayload(64 << 10)
	srv := artifactServer(t, payload)
	d := newDownloader(t, &fakeCaller{}, download.WithChunkSize(1024))
	desc := descriptorFor(t, srv.URL+"/artifact", payload)

	sink := &failingSink{after: 8 << 10}
	res, err := d.Stream(t.Context(), desc, sink)
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("expected the sink error, got: %v", err)
	}
	if res.Bytes != int64(sink.n) {
		t.Errorf("expected partial result of %d bytes, got %d", sink.n, res.Bytes)
	}
}

func TestStream_Cancelled(t *testing.T) {
	first := []byte(strings.Repeat("a", 4096))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		w.Write(first)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	d := newDownloader(t, &fakeCaller{})
	desc := descriptorFor(t, srv.URL, first)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var once sync.Once
	observer := func(p download.Progress) {
		if p.BytesReceived > 0 {
			once.Do(cancel)
		}
	}

	var sink bytes.Buffer
	_, err := d.Stream(ctx, desc, &sink, download.WithProgress(observer))
	if !errors.Is(err, download.ErrDownloadCancelled) {
		t.Fatalf("expected ErrDownloadCancelled, got: %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got: %v", err)
	}
	if sink.Len() == 0 {
		t.Error("partial output must be left in the sink")
	}
}

func TestStream_ProgressLog(t *testing.T) {
	payload := randomPayload(10 << 10)
	srv := artifactServer(t, payload)

	var buf bytes.Buffer
	hc, err := client.Build(client.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	if err != nil {
		t.Fatal(err)
	}

	d, err := download.New(&fakeCaller{}, hc)
	if err != nil {
		t.Fatal(err)
	}

	desc := descriptorFor(t, srv.URL+"/artifact", payload)
	if _, err := d.Stream(t.Context(), desc, io.Discard, download.WithProgressLog()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "download complete") || !strings.Contains(out, "file=artifact.tar.gz") {
		t.Errorf("expected completion to be logged, got:\n%s", out)
	}
}

func TestNewDescriptor_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		url  string
		file string
		hash string
		size int64
	}{
		{name: "no url", file: "a", hash: "5d41402abc4b2a76b9719d911017c592"},
		{name: "relative url", url: "/a", file: "a", hash: "5d41402abc4b2a76b9719d911017c592"},
		{name: "no filename", url: "https://x.example/a", hash: "5d41402abc4b2a76b9719d911017c592"},
		{name: "bad hash", url: "https://x.example/a", file: "a", hash: "5d41"},
		{name: "negative size", url: "https://x.example/a", file: "a", hash: "5d41402abc4b2a76b9719d911017c592", size: -1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := download.NewDescriptor(tc.url, tc.file, tc.hash, tc.size); !errors.Is(err, download.ErrInvalidDescriptor) {
				t.Errorf("expected ErrInvalidDescriptor, got: %v", err)
			}
		})
	}
}
