package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Product names a downloadable product line.
type Product string

const (
	ProductHoudini     Product = "houdini"
	ProductLauncher    Product = "houdini-launcher"
	ProductLauncherISO Product = "launcher-iso"
)

// Products lists every known product.
var Products = []Product{ProductHoudini, ProductLauncher, ProductLauncherISO}

// ErrUnknownProduct is returned by [ParseProduct].
var ErrUnknownProduct = errors.New("unknown product")

// ParseProduct returns the Product named s.
func ParseProduct(s string) (Product, error) {
	p := Product(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Products {
		if p == known {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownProduct, s)
}

// Platform is a platform family. Individual builds carry a more specific
// platform string, such as linux_x86_64_gcc11.2, whose family is given by [FamilyOf].
type Platform string

const (
	PlatformLinux       Platform = "linux"
	PlatformWin64       Platform = "win64"
	PlatformMacOS       Platform = "macos"
	PlatformMacOSXArm64 Platform = "macosx_arm64"
)

// Platforms lists every known platform family.
var Platforms = []Platform{PlatformLinux, PlatformWin64, PlatformMacOS, PlatformMacOSXArm64}

// ErrUnknownPlatform is returned by [ParsePlatform].
var ErrUnknownPlatform = errors.New("unknown platform")

// ParsePlatform returns the Platform named s.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms {
		if p == known {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

// PlatformUnknown is the family of build platform strings [FamilyOf]
// cannot place. It is not in [Platforms], so no query matches it.
const PlatformUnknown Platform = "unknown"

// FamilyOf maps a build platform string to its family. Family names map
// to themselves; Intel macOS builds are published as macosx_x86*.
func FamilyOf(buildPlatform string) Platform {
	p := strings.ToLower(buildPlatform)

	switch {
	case p == string(PlatformMacOS):
		return PlatformMacOS
	case strings.HasPrefix(p, string(PlatformMacOSXArm64)):
		return PlatformMacOSXArm64
	case strings.HasPrefix(p, "macosx_x86"):
		return PlatformMacOS
	case strings.HasPrefix(p, string(PlatformLinux)):
		return PlatformLinux
	case strings.HasPrefix(p, string(PlatformWin64)):
		return PlatformWin64
	default:
		return PlatformUnknown
	}
}

// DefaultPlatform returns the family matching the running system,
// falling back to linux.
func DefaultPlatform() Platform {
	switch runtime.GOOS {
	case "windows":
		return PlatformWin64
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return PlatformMacOSXArm64
		}
		return PlatformMacOS
	default:
		return PlatformLinux
	}
}

// ValidVersion reports whether v has the major.minor form, e.g. 19.5.
func ValidVersion(v string) bool {
	major, minor, ok := strings.Cut(v, ".")
	if !ok {
		return false
	}

	return isDigits(major) && isDigits(minor)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// Status is the vendor's quality flag for a build.
type Status string

const (
	StatusGood    Status = "good"
	StatusBad     Status = "bad"
	StatusUnknown Status = "unknown"
)

// UnmarshalJSON maps any unrecognised value to [StatusUnknown].
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("status: %w", err)
	}

	switch Status(strings.ToLower(raw)) {
	case StatusGood:
		*s = StatusGood
	case StatusBad:
		*s = StatusBad
	default:
		*s = StatusUnknown
	}

	return nil
}

// Release is the publication channel of a build. The set is open-ended.
type Release string

const (
	ReleaseGold  Release = "gold"
	ReleaseDaily Release = "daily"
)

// BuildNumber is the per-version build counter. The API sends it either
// as a JSON number or as a numeric string.
type BuildNumber uint64

func (n *BuildNumber) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	s := strings.Trim(string(b), `"`)

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("build number %s: %w", b, err)
	}

	*n = BuildNumber(v)
	return nil
}

func (n BuildNumber) String() string {
	return strconv.FormatUint(uint64(n), 10)
}

// Build is one published build. Records are immutable once decoded.
type Build struct {
	Date     string      `json:"date" validate:"required"`
	Product  Product     `json:"product" validate:"required"`
	Platform string      `json:"platform" validate:"required"`
	Version  string      `json:"version" validate:"required"`
	Number   BuildNumber `json:"build" validate:"required"`
	Status   Status      `json:"status" validate:"required"`
	Release  Release     `json:"release" validate:"required"`
}

// FullVersion joins version and build number, e.g. 19.5.303.
func (b Build) FullVersion() string {
	return b.Version + "." + b.Number.String()
}

// Family returns the platform family of the build.
func (b Build) Family() Platform {
	return FamilyOf(b.Platform)
}

// Query selects builds.
type Query struct {
	Product Product `validate:"required"`
	// Version is exact (19.5) or a major-version prefix (19). Empty matches all.
	Version string
	// Platform is the family; builds of other families never match.
	Platform Platform `validate:"required"`
	// Variant, when set, must equal the build's platform string exactly.
	Variant string
	// IncludeDaily lists non-production builds as well.
	IncludeDaily bool
}

func (q Query) matches(b Build) bool {
	if b.Family() != q.Platform {
		return false
	}
	if q.Variant != "" && b.Platform != q.Variant {
		return false
	}

	return q.Version == "" || b.Version == q.Version || strings.HasPrefix(b.Version, q.Version+".")
}

func (q Query) params() map[string]string {
	p := map[string]string{
		"product":  string(q.Product),
		"platform": string(q.Platform),
	}
	if q.Version != "" {
		p["version"] = q.Version
	}
	if q.Variant != "" {
		p["variant"] = q.Variant
	}

	return p
}
