// Package sesitest runs an in-process stand-in for the vendor's token,
// RPC and artifact endpoints.
//
// Tokens are HS256 JWTs signed with a per-server key. The RPC endpoint
// accepts only tokens it issued, so [Server.RevokeTokens] makes every
// outstanding token fail the way an expired one would.
package sesitest

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/adamwoolhether/houdl/catalog"
)

// Credentials accepted by the token endpoint.
const (
	UserID     = "sesitest-user"
	UserSecret = "sesitest-secret"
)

// Paths served by a [Server].
const (
	TokenPath = "/oauth2/application_token"
	APIPath   = "/api"
	FilesPath = "/files/"
)

// Artifact is a downloadable package of a build.
type Artifact struct {
	Build catalog.Build
	// Package defaults to the build's product.
	Package  string
	Filename string
	Payload  []byte
	// Hash overrides the advertised MD5 of Payload.
	Hash string
}

func (a Artifact) md5() string {
	if a.Hash != "" {
		return a.Hash
	}

	sum := md5.Sum(a.Payload)
	return hex.EncodeToString(sum[:])
}

// Server is a running fake vendor.
type Server struct {
	// URL is the base URL of the server.
	URL string

	srv      *httptest.Server
	lifetime time.Duration

	mu        sync.Mutex
	key       []byte
	builds    []catalog.Build
	artifacts []Artifact
	methods   []string
	reject    int

	tokenHits atomic.Int32
	apiHits   atomic.Int32
	fileHits  atomic.Int32
}

// Option configures a [Server].
type Option func(*Server)

// WithBuilds adds builds to the listing.
func WithBuilds(builds ...catalog.Build) Option {
	return func(s *Server) {
		s.builds = append(s.builds, builds...)
	}
}

// WithArtifacts adds artifacts, listing their builds as well.
func WithArtifacts(artifacts ...Artifact) Option {
	return func(s *Server) {
		for _, a := range artifacts {
			if a.Package == "" {
				a.Package = string(a.Build.Product)
			}
			s.artifacts = append(s.artifacts, a)
			if !slices.Contains(s.builds, a.Build) {
				s.builds = append(s.builds, a.Build)
			}
		}
	}
}

// WithTokenLifetime sets the expires_in of issued tokens.
func WithTokenLifetime(d time.Duration) Option {
	return func(s *Server) {
		s.lifetime = d
	}
}

// New starts a Server that is closed when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		lifetime: time.Hour,
		key:      []byte(uuid.NewString()),
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.TestMode)

	s.srv = httptest.NewServer(s.router())
	s.URL = s.srv.URL
	t.Cleanup(s.srv.Close)

	return s
}

// TokenURL returns the token endpoint.
func (s *Server) TokenURL() string { return s.URL + TokenPath }

// APIURL returns the RPC endpoint.
func (s *Server) APIURL() string { return s.URL + APIPath }

// RejectNext makes the next n RPC calls fail with 401 whatever their token.
func (s *Server) RejectNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reject = n
}

// RevokeTokens invalidates every token issued so far.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.key = []byte(uuid.NewString())
}

// TokenHits counts requests to the token endpoint.
func (s *Server) TokenHits() int { return int(s.tokenHits.Load()) }

// APIHits counts requests to the RPC endpoint, rejected ones included.
func (s *Server) APIHits() int { return int(s.apiHits.Load()) }

// FileHits counts artifact requests.
func (s *Server) FileHits() int { return int(s.fileHits.Load()) }

// Methods returns the RPC methods that passed authentication, in order.
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.methods)
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST(TokenPath, s.issueToken)
	r.POST(APIPath, s.requireToken, s.call)
	r.GET(FilesPath+":name", s.serveFile)

	return r
}

func (s *Server) signingKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.key
}

func (s *Server) issueToken(c *gin.Context) {
	s.tokenHits.Add(1)

	user, pass, ok := c.Request.BasicAuth()
	if !ok || user != UserID || pass != UserSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_client"})
		return
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   user,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(s.lifetime.Seconds()),
		"scope":        "read",
	})
}

func (s *Server) requireToken(c *gin.Context) {
	s.apiHits.Add(1)

	s.mu.Lock()
	rejected := s.reject > 0
	if rejected {
		s.reject--
	}
	s.mu.Unlock()

	if rejected {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token rejected"})
		return
	}

	scheme, raw, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	key := s.signingKey()
	_, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	c.Next()
}

type listParams struct {
	Product        string `json:"product"`
	Platform       string `json:"platform"`
	Version        string `json:"version"`
	OnlyProduction bool   `json:"only_production"`
}

type downloadParams struct {
	Product  string              `json:"product"`
	Platform string              `json:"platform"`
	Version  string              `json:"version"`
	Build    catalog.BuildNumber `json:"build"`
}

func (s *Server) call(c *gin.Context) {
	var call []json.RawMessage
	if err := json.Unmarshal([]byte(c.PostForm("json")), &call); err != nil || len(call) != 3 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "json must be [method, args, kwargs]"})
		return
	}

	var method string
	if err := json.Unmarshal(call[0], &method); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "method must be a string"})
		return
	}

	s.mu.Lock()
	s.methods = append(s.methods, method)
	s.mu.Unlock()

	switch method {
	case "download.get_daily_builds_list":
		var p listParams
		if err := json.Unmarshal(call[2], &p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, s.list(p))

	case "download.get_daily_build_download":
		var p downloadParams
		if err := json.Unmarshal(call[2], &p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a, ok := s.find(p)
		if !ok {
			c.JSON(http.StatusOK, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"download_url": s.URL + FilesPath + a.Filename,
			"filename":     a.Filename,
			"hash":         a.md5(),
			"size":         len(a.Payload),
			"date":         a.Build.Date,
		})

	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown method " + method})
	}
}

func (s *Server) list(p listParams) []catalog.Build {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]catalog.Build, 0, len(s.builds))
	for _, b := range s.builds {
		if string(b.Product) != p.Product {
			continue
		}
		if p.Version != "" && b.Version != p.Version && !strings.HasPrefix(b.Version, p.Version+".") {
			continue
		}
		if p.OnlyProduction && b.Release != catalog.ReleaseGold {
			continue
		}
		out = append(out, b)
	}

	return out
}

func (s *Server) find(p downloadParams) (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.artifacts {
		if a.Package == p.Product &&
			string(a.Build.Family()) == p.Platform &&
			a.Build.Version == p.Version &&
			a.Build.Number == p.Build {
			return a, true
		}
	}

	return Artifact{}, false
}

func (s *Server) serveFile(c *gin.Context) {
	s.fileHits.Add(1)

	s.mu.Lock()
	idx := slices.IndexFunc(s.artifacts, func(a Artifact) bool { return a.Filename == c.Param("name") })
	var payload []byte
	if idx >= 0 {
		payload = s.artifacts[idx].Payload
	}
	s.mu.Unlock()

	if idx < 0 {
		c.Status(http.StatusNotFound)
		return
	}

	c.Header("Content-Length", strconv.Itoa(len(payload)))
	c.Data(http.StatusOK, "application/octet-stream", payload)
}
