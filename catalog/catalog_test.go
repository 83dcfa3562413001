package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/adamwoolhether/houdl/api"
	"github.com/adamwoolhether/houdl/catalog"
	"github.com/adamwoolhether/houdl/errs"
	"github.com/adamwoolhether/houdl/validate"
)

// fakeCaller answers every call with body and records what was sent.
type fakeCaller struct {
	body   string
	err    error
	method string
	params map[string]any
	calls  int
}

func (f *fakeCaller) Call(_ context.Context, method string, params any, dest any) error {
	f.calls++
	f.method = method

	b, _ := json.Marshal(params)
	f.params = nil
	json.Unmarshal(b, &f.params)

	if f.err != nil {
		return f.err
	}

	return json.Unmarshal([]byte(f.body), dest)
}

// Newest first, as the server returns it.
const fixture = `[
	{"date":"2026-02-20","product":"houdini","platform":"macosx_x86_64_clang14.0_13","version":"19.5","build":"805","status":"good","release":"gold"},
	{"date":"2026-02-19","product":"houdini","platform":"linux_x86_64_gcc11.2","version":"19.5","build":804,"status":"good","release":"daily"},
	{"date":"2026-02-18","product":"houdini","platform":"macosx_x86_64_clang14.0_13","version":"19.5","build":"803","status":"bad","release":"daily"},
	{"date":"2026-02-17","product":"houdini","platform":"linux_x86_64_gcc9.3","version":"19.5","build":"802","status":"good","release":"daily"},
	{"date":"2026-02-16","product":"houdini","platform":"macosx_x86_64_clang12.0_10.15","version":"19.5","build":"801","status":"weird","release":"daily"}
]`

func TestList_MacOSScenario(t *testing.T) {
	caller := &fakeCaller{body: fixture}
	cat := catalog.New(caller)

	builds, err := cat.List(t.Context(), catalog.Query{
		Product:  catalog.ProductHoudini,
		Version:  "19.5",
		Platform: catalog.PlatformMacOS,
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	got := slices.Collect(builds)

	exp := []catalog.Build{
		{Date: "2026-02-20", Product: catalog.ProductHoudini, Platform: "macosx_x86_64_clang14.0_13", Version: "19.5", Number: 805, Status: catalog.StatusGood, Release: catalog.ReleaseGold},
		{Date: "2026-02-18", Product: catalog.ProductHoudini, Platform: "macosx_x86_64_clang14.0_13", Version: "19.5", Number: 803, Status: catalog.StatusBad, Release: catalog.ReleaseDaily},
		{Date: "2026-02-16", Product: catalog.ProductHoudini, Platform: "macosx_x86_64_clang12.0_10.15", Version: "19.5", Number: 801, Status: catalog.StatusUnknown, Release: catalog.ReleaseDaily},
	}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Errorf("unexpected builds (-want +got):\n%s", diff)
	}

	if caller.method != api.MethodListBuilds {
		t.Errorf("unexpected method %q", caller.method)
	}
	expParams := map[string]any{"product": "houdini", "platform": "macos", "version": "19.5", "only_production": true}
	if diff := cmp.Diff(expParams, caller.params); diff != "" {
		t.Errorf("unexpected params (-want +got):\n%s", diff)
	}
}

func TestList_Filters(t *testing.T) {
	const body = `[
		{"date":"d6","product":"houdini","platform":"macosx_arm64_clang15.0_14","version":"20.0","build":"600","status":"good","release":"gold"},
		{"date":"d5","product":"houdini","platform":"linux_x86_64_gcc11.2","version":"20.0","build":"500","status":"good","release":"gold"},
		{"date":"d4","product":"houdini","platform":"linux_x86_64_gcc9.3","version":"19.5","build":"400","status":"good","release":"gold"},
		{"date":"d3","product":"houdini","platform":"linux_x86_64_gcc11.2","version":"19.0","build":"300","status":"good","release":"gold"},
		{"date":"d2","product":"houdini","platform":"linux_x86_64_gcc11.2","version":"190.1","build":"200","status":"good","release":"gold"},
		{"date":"d1","product":"houdini","platform":"macosx_x86_64_clang12.0","version":"19.5","build":"100","status":"good","release":"gold"},
		{"date":"d0","product":"houdini","platform":"solaris_sparc","version":"19.5","build":"50","status":"good","release":"gold"}
	]`

	testCases := []struct {
		name string
		q    catalog.Query
		exp  []catalog.BuildNumber
	}{
		{name: "all linux", q: catalog.Query{Platform: catalog.PlatformLinux}, exp: []catalog.BuildNumber{500, 400, 300, 200}},
		{name: "major prefix", q: catalog.Query{Platform: catalog.PlatformLinux, Version: "19"}, exp: []catalog.BuildNumber{400, 300}},
		{name: "exact version", q: catalog.Query{Platform: catalog.PlatformLinux, Version: "19.5"}, exp: []catalog.BuildNumber{400}},
		{name: "variant", q: catalog.Query{Platform: catalog.PlatformLinux, Variant: "linux_x86_64_gcc11.2"}, exp: []catalog.BuildNumber{500, 300, 200}},
		{name: "macos excludes arm", q: catalog.Query{Platform: catalog.PlatformMacOS}, exp: []catalog.BuildNumber{100}},
		{name: "arm excludes intel", q: catalog.Query{Platform: catalog.PlatformMacOSXArm64}, exp: []catalog.BuildNumber{600}},
		{name: "no match", q: catalog.Query{Platform: catalog.PlatformWin64}, exp: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.q.Product = catalog.ProductHoudini
			cat := catalog.New(&fakeCaller{body: body})

			builds, err := cat.List(t.Context(), tc.q)
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}

			var got []catalog.BuildNumber
			for b := range builds {
				got = append(got, b.Number)
			}

			if diff := cmp.Diff(tc.exp, got); diff != "" {
				t.Errorf("unexpected builds (-want +got):\n%s", diff)
			}
		})
	}
}

func TestList_EmptyIsNotAnError(t *testing.T) {
	for _, body := range []string{`[]`, `null`} {
		cat := catalog.New(&fakeCaller{body: body})

		builds, err := cat.List(t.Context(), catalog.Query{Product: catalog.ProductHoudini, Platform: catalog.PlatformLinux, Version: "99.9"})
		if err != nil {
			t.Fatalf("%s: expected no error, got: %v", body, err)
		}
		if got := slices.Collect(builds); len(got) != 0 {
			t.Errorf("%s: expected no builds, got %d", body, len(got))
		}
	}
}

func TestList_NotRestartable(t *testing.T) {
	cat := catalog.New(&fakeCaller{body: fixture})

	builds, err := cat.List(t.Context(), catalog.Query{Product: catalog.ProductHoudini, Platform: catalog.PlatformMacOS})
	if err != nil {
		t.Fatal(err)
	}

	// Stop after the first element; the sequence is spent.
	for range builds {
		break
	}

	if got := slices.Collect(builds); len(got) != 0 {
		t.Errorf("expected a second range to yield nothing, got %d builds", len(got))
	}
}

func TestList_FamilyLabelledRecords(t *testing.T) {
	const body = `[
		{"date":"d4","product":"houdini","platform":"macos","version":"19.5","build":"804","status":"good","release":"gold"},
		{"date":"d3","product":"houdini","platform":"linux","version":"19.5","build":"803","status":"good","release":"gold"},
		{"date":"d2","product":"houdini","platform":"macos","version":"19.5","build":"802","status":"good","release":"gold"},
		{"date":"d1","product":"houdini","platform":"macos","version":"19.5","build":"801","status":"good","release":"gold"}
	]`

	testCases := []struct {
		platform catalog.Platform
		exp      []catalog.BuildNumber
	}{
		{platform: catalog.PlatformMacOS, exp: []catalog.BuildNumber{804, 802, 801}},
		{platform: catalog.PlatformMacOSXArm64, exp: nil},
		{platform: catalog.PlatformLinux, exp: []catalog.BuildNumber{803}},
	}

	for _, tc := range testCases {
		t.Run(string(tc.platform), func(t *testing.T) {
			cat := catalog.New(&fakeCaller{body: body})

			builds, err := cat.List(t.Context(), catalog.Query{Product: catalog.ProductHoudini, Version: "19.5", Platform: tc.platform})
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}

			var got []catalog.BuildNumber
			for b := range builds {
				got = append(got, b.Number)
			}

			if diff := cmp.Diff(tc.exp, got); diff != "" {
				t.Errorf("unexpected builds (-want +got):\n%s", diff)
			}
		})
	}
}

func TestList_MalformedRecordRejectsListing(t *testing.T) {
	const valid = `{"date":"d2","product":"houdini","platform":"linux_x86_64_gcc11.2","version":"19.5","build":"2","status":"good","release":"gold"}`

	testCases := []struct {
		name   string
		record string
		exp    []string
	}{
		{
			name:   "missing version",
			record: `{"date":"d1","product":"houdini","platform":"linux_x86_64_gcc11.2","build":"1","status":"good","release":"gold"}`,
			exp:    []string{"version"},
		},
		{
			name:   "missing product",
			record: `{"date":"d1","platform":"linux_x86_64_gcc11.2","version":"19.5","build":"1","status":"good","release":"gold"}`,
			exp:    []string{"product"},
		},
		{
			name:   "missing status",
			record: `{"date":"d1","product":"houdini","platform":"linux_x86_64_gcc11.2","version":"19.5","build":"1","release":"gold"}`,
			exp:    []string{"status"},
		},
		{
			name:   "missing release",
			record: `{"date":"d1","product":"houdini","platform":"linux_x86_64_gcc11.2","version":"19.5","build":"1","status":"good"}`,
			exp:    []string{"release"},
		},
		{
			name:   "missing product and release",
			record: `{"date":"d1","platform":"linux_x86_64_gcc11.2","version":"19.5","build":"1","status":"good"}`,
			exp:    []string{"product", "release"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cat := catalog.New(&fakeCaller{body: "[" + valid + "," + tc.record + "]"})

			builds, err := cat.List(t.Context(), catalog.Query{Product: catalog.ProductHoudini, Platform: catalog.PlatformLinux})
			if builds != nil {
				t.Error("no sequence may be returned for a malformed listing")
			}

			var apiErr *errs.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got: %v", err)
			}

			var fieldErrs validate.FieldErrors
			if !errors.As(err, &fieldErrs) {
				t.Fatalf("expected field errors in chain, got: %v", err)
			}
			if diff := cmp.Diff(tc.exp, fieldErrs.Fields()); diff != "" {
				t.Errorf("unexpected failing fields (-want +got):\n%s", diff)
			}
		})
	}
}

func TestList_UnrecognisedStatusIsKept(t *testing.T) {
	const body = `[{"date":"d1","product":"houdini","platform":"linux_x86_64_gcc11.2","version":"19.5","build":"1","status":"","release":"gold"}]`

	builds, err := catalog.New(&fakeCaller{body: body}).List(t.Context(), catalog.Query{Product: catalog.ProductHoudini, Platform: catalog.PlatformLinux})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	got := slices.Collect(builds)
	if len(got) != 1 || got[0].Status != catalog.StatusUnknown {
		t.Errorf("expected one build with unknown status, got %+v", got)
	}
}

func TestList_InvalidQuery(t *testing.T) {
	caller := &fakeCaller{body: fixture}
	cat := catalog.New(caller)

	if _, err := cat.List(t.Context(), catalog.Query{Product: catalog.ProductHoudini}); err == nil {
		t.Fatal("expected error for missing platform")
	}
	if caller.calls != 0 {
		t.Error("an invalid query must not reach the server")
	}
}

func TestList_CallerError(t *testing.T) {
	cause := &errs.AuthError{Endpoint: "api", Status: 401}
	cat := catalog.New(&fakeCaller{err: cause})

	_, err := cat.List(t.Context(), catalog.Query{Product: catalog.ProductHoudini, Platform: catalog.PlatformLinux})
	if !errors.Is(err, errs.ErrAuth) {
		t.Errorf("expected the caller's error, got: %v", err)
	}
}

func TestFind(t *testing.T) {
	cat := catalog.New(&fakeCaller{body: fixture})
	q := catalog.Query{Product: catalog.ProductHoudini, Version: "19.5", Platform: catalog.PlatformMacOS}

	b, err := cat.Find(t.Context(), q, 803)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if b.FullVersion() != "19.5.803" {
		t.Errorf("unexpected build %s", b.FullVersion())
	}

	// 804 exists, but for linux.
	_, err = cat.Find(t.Context(), q, 804)

	var nf *errs.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got: %v", err)
	}

	exp := map[string]string{"product": "houdini", "platform": "macos", "version": "19.5", "build": "804"}
	if diff := cmp.Diff(exp, nf.Params); diff != "" {
		t.Errorf("unexpected params (-want +got):\n%s", diff)
	}
}
