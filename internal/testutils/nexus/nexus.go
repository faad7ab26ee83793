// Package nexus is a fake Nexus delta server for tests.
//
// It serves resources, resolvers and files of any organization/project,
// keeping every revision in memory.
package nexus

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
	"github.com/openbraininstitute/entitykit/pkg/utils/echoutil"
)

const (
	DefaultBase = "https://bbp.epfl.ch/data/fake"

	MetadataContext = "https://bluebrain.github.io/nexus/contexts/metadata.json"
	ErrorContext    = "https://bluebrain.github.io/nexus/contexts/error.json"
	Unconstrained   = "https://bluebrain.github.io/nexus/schemas/unconstrained.json"
)

type file struct {
	mediaType string
	content   []byte
}

type Server struct {
	mu sync.Mutex

	// URL of the server, like "http://127.0.0.1:12345"
	URL string

	base     string
	token    string
	reject   func(payload *jsonld.Object, schema string) string
	now      func() time.Time
	logLevel string

	order     []string
	resources map[string][]*jsonld.Object
	projects  map[string]string
	files     map[string]*file
	failures  int
	requests  []string
}

type Option func(*Server) *Server

// WithBase sets the prefix of ids which the server assigns.
func WithBase(base string) Option {
	return func(s *Server) *Server {
		s.base = base
		return s
	}
}

// WithToken makes the server require "Authorization: Bearer <token>".
func WithToken(token string) Option {
	return func(s *Server) *Server {
		s.token = token
		return s
	}
}

// WithRejection makes the server reject resources on creation.
//
// reject returns the reason to reject, or "" to accept.
func WithRejection(reject func(payload *jsonld.Object, schema string) string) Option {
	return func(s *Server) *Server {
		s.reject = reject
		return s
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) *Server {
		s.now = now
		return s
	}
}

// WithLogLevel sets the log level of the server. It is "off" by default.
func WithLogLevel(level string) Option {
	return func(s *Server) *Server {
		s.logLevel = level
		return s
	}
}

// New starts a fake Nexus. It is closed when the test ends.
func New(t *testing.T, options ...Option) *Server {
	t.Helper()
	s := &Server{
		base:      DefaultBase,
		now:       time.Now,
		logLevel:  "off",
		resources: map[string][]*jsonld.Object{},
		projects:  map[string]string{},
		files:     map[string]*file{},
	}
	for _, o := range options {
		s = o(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetOutput(testWriter{t: t})
	echoutil.SetLevel(e, s.logLevel)
	e.Use(echoutil.LogHandlerFunc, s.record, s.authorize, s.unavailable)

	e.GET("/resources", s.list)
	e.GET("/resources/:org/:project", s.list)
	e.POST("/resources/:org/:project/:schema", s.create)
	e.GET("/resources/:org/:project/:schema/:id", s.get(false))
	e.PUT("/resources/:org/:project/:schema/:id", s.create)
	e.GET("/resolvers/:org/:project/:resolver/:id", s.get(true))
	e.POST("/files/:org/:project", s.upload)
	e.GET("/files/:org/:project/:id", s.download)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	s.URL = srv.URL
	return s
}

type testWriter struct{ t *testing.T }

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}

// Put stores a payload as a new revision of the resource in the project.
//
// When the payload has no "@id", a new one is assigned. It returns the id.
func (s *Server) Put(project string, payload *jsonld.Object) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := payload.GetString("@id")
	if id == "" {
		id = s.base + "/" + uuid.NewString()
	}
	s.store(id, project, payload, "_")
	return id
}

// Revisions returns stored payloads of the resource, from the first revision.
func (s *Server) Revisions(id string) []*jsonld.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := []*jsonld.Object{}
	for _, r := range s.resources[id] {
		ret = append(ret, r.Clone())
	}
	return ret
}

// IDs returns ids of resources, in order of their creation.
func (s *Server) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// FileContent returns the content of an uploaded file.
func (s *Server) FileContent(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(f.content), true
}

// PutFile stores a file, and returns its self URL.
func (s *Server) PutFile(project string, id string, mediaType string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = &file{mediaType: mediaType, content: slices.Clone(content)}
	return s.fileSelf(project, id)
}

// Requests returns "METHOD /path" of received requests.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// FailNext makes the server respond 503 for next n GET requests.
func (s *Server) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

func (s *Server) resourceSelf(project string, id string) string {
	return s.URL + "/resources/" + project + "/_/" + url.PathEscape(id)
}

func (s *Server) fileSelf(project string, id string) string {
	return s.URL + "/files/" + project + "/" + url.PathEscape(id)
}

// store appends a revision. The caller should lock.
func (s *Server) store(id string, project string, payload *jsonld.Object, schema string) *jsonld.Object {
	revs, exists := s.resources[id]
	now := s.now().UTC().Format(time.RFC3339)

	stored := jsonld.NewObject()
	if ctx, ok := payload.Get("@context"); ok {
		stored.Set("@context", ctx)
	}
	stored.Set("@id", id)
	for k, v := range payload.Iter() {
		switch k {
		case "@context", "@id":
		default:
			stored.Set(k, jsonld.DeepCopy(v))
		}
	}

	constrainedBy := Unconstrained
	if schema != "_" {
		constrainedBy = schema
	}
	createdAt := now
	if exists {
		createdAt, _ = revs[0].GetString("_createdAt")
	}
	md := []jsonld.Pair{
		jsonld.P("_self", s.resourceSelf(project, id)),
		jsonld.P("_constrainedBy", constrainedBy),
		jsonld.P("_project", s.URL+"/projects/"+project),
		jsonld.P("_rev", len(revs)+1),
		jsonld.P("_deprecated", false),
		jsonld.P("_createdAt", createdAt),
		jsonld.P("_createdBy", s.URL+"/realms/bbp/users/fake"),
		jsonld.P("_updatedAt", now),
		jsonld.P("_updatedBy", s.URL+"/realms/bbp/users/fake"),
	}
	for _, p := range md {
		stored.Set(p.Key, p.Value)
	}

	if !exists {
		s.order = append(s.order, id)
		s.projects[id] = project
	}
	s.resources[id] = append(revs, stored)

	ack := jsonld.NewObject(
		jsonld.P("@context", MetadataContext),
		jsonld.P("@id", id),
	)
	if t, ok := stored.Get("@type"); ok {
		ack.Set("@type", t)
	}
	for _, p := range md {
		ack.Set(p.Key, p.Value)
	}
	return ack
}

func (s *Server) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mu.Lock()
		s.requests = append(s.requests, c.Request().Method+" "+c.Request().URL.Path)
		s.mu.Unlock()
		return next(c)
	}
}

func (s *Server) authorize(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.token != "" && c.Request().Header.Get("Authorization") != "Bearer "+s.token {
			return nexusError(
				c, http.StatusUnauthorized, "AuthorizationFailed",
				"The supplied authentication is not authorized to access this resource.",
			)
		}
		return next(c)
	}
}

func (s *Server) unavailable(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Method == http.MethodGet {
			s.mu.Lock()
			fail := 0 < s.failures
			if fail {
				s.failures -= 1
			}
			s.mu.Unlock()
			if fail {
				return c.String(http.StatusServiceUnavailable, "service unavailable")
			}
		}
		return next(c)
	}
}

func param(c echo.Context, name string) string {
	v := c.Param(name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func ldjson(c echo.Context, code int, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Blob(code, "application/ld+json", buf)
}

func nexusError(c echo.Context, code int, typ string, reason string) error {
	return ldjson(c, code, jsonld.NewObject(
		jsonld.P("@context", ErrorContext),
		jsonld.P("@type", typ),
		jsonld.P("reason", reason),
	))
}

func notFound(c echo.Context, id string) error {
	return nexusError(
		c, http.StatusNotFound, "ResourceNotFound",
		fmt.Sprintf("Resource '%s' not found.", id),
	)
}

func (s *Server) get(resolve bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := param(c, "id")
		project := c.Param("org") + "/" + c.Param("project")

		s.mu.Lock()
		defer s.mu.Unlock()

		revs, ok := s.resources[id]
		if !ok || (!resolve && s.projects[id] != project) {
			return notFound(c, id)
		}
		rev := len(revs)
		if q := c.QueryParam("rev"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n < 1 || len(revs) < n {
				return notFound(c, id+"?rev="+q)
			}
			rev = n
		}
		return ldjson(c, http.StatusOK, revs[rev-1])
	}
}

func (s *Server) create(c echo.Context) error {
	project := c.Param("org") + "/" + c.Param("project")
	schema := param(c, "schema")

	doc, err := jsonld.Decode(c.Request().Body)
	payload, ok := doc.(*jsonld.Object)
	if err != nil || !ok {
		return nexusError(c, http.StatusBadRequest, "MalformedPayload", "The payload is not a json object.")
	}

	id, _ := payload.GetString("@id")
	if c.Request().Method == http.MethodPut {
		id = param(c, "id")
	}
	if id == "" {
		id = s.base + "/" + uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[id]; ok {
		return nexusError(
			c, http.StatusConflict, "ResourceAlreadyExists",
			fmt.Sprintf("Resource '%s' already exists in project '%s'.", id, project),
		)
	}
	if s.reject != nil {
		if reason := s.reject(payload, schema); reason != "" {
			return nexusError(c, http.StatusBadRequest, "InvalidResource", reason)
		}
	}
	return ldjson(c, http.StatusCreated, s.store(id, project, payload, schema))
}

func (s *Server) list(c echo.Context) error {
	project := ""
	if org := c.Param("org"); org != "" {
		project = org + "/" + c.Param("project")
	}
	types := c.QueryParams()["type"]
	from, err := strconv.Atoi(c.QueryParam("from"))
	if err != nil {
		from = 0
	}
	size, err := strconv.Atoi(c.QueryParam("size"))
	if err != nil {
		size = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []*jsonld.Object{}
	for _, id := range s.order {
		if project != "" && s.projects[id] != project {
			continue
		}
		revs := s.resources[id]
		latest := revs[len(revs)-1]
		t, _ := latest.Get("@type")
		have := forge.StringOrList(t)
		ok := true
		for _, want := range types {
			if !slices.Contains(have, want) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		summary := jsonld.NewObject(jsonld.P("@id", id))
		if t != nil {
			summary.Set("@type", t)
		}
		for _, k := range []string{"_self", "_project", "_rev", "_deprecated"} {
			v, _ := latest.Get(k)
			summary.Set(k, v)
		}
		matched = append(matched, summary)
	}

	page := []*jsonld.Object{}
	if from < len(matched) {
		page = matched[from:min(from+size, len(matched))]
	}
	return ldjson(c, http.StatusOK, jsonld.NewObject(
		jsonld.P("@context", MetadataContext),
		jsonld.P("_total", len(matched)),
		jsonld.P("_results", page),
	))
}

func (s *Server) upload(c echo.Context) error {
	project := c.Param("org") + "/" + c.Param("project")
	fh, err := c.FormFile("file")
	if err != nil {
		return nexusError(c, http.StatusBadRequest, "MalformedPayload", "no file in the payload.")
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	mediaType := fh.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	key := uuid.NewString()
	id := s.base + "/files/" + key
	sum := sha256.Sum256(content)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = &file{mediaType: mediaType, content: content}

	return ldjson(c, http.StatusCreated, jsonld.NewObject(
		jsonld.P("@context", MetadataContext),
		jsonld.P("@id", id),
		jsonld.P("@type", "File"),
		jsonld.P("_self", s.fileSelf(project, id)),
		jsonld.P("_filename", fh.Filename),
		jsonld.P("_mediaType", mediaType),
		jsonld.P("_bytes", len(content)),
		jsonld.P("_digest", jsonld.NewObject(
			jsonld.P("_algorithm", "SHA-256"),
			jsonld.P("_value", hex.EncodeToString(sum[:])),
		)),
		jsonld.P("_location", "file:///nexus/storage/"+key+"/"+fh.Filename),
		jsonld.P("_storage", jsonld.NewObject(
			jsonld.P("@id", s.base+"/storages/default"),
			jsonld.P("@type", "DiskStorage"),
			jsonld.P("_rev", 1),
		)),
		jsonld.P("_rev", 1),
	))
}

func (s *Server) download(c echo.Context) error {
	id := param(c, "id")
	s.mu.Lock()
	f, ok := s.files[id]
	s.mu.Unlock()
	if !ok {
		return notFound(c, id)
	}
	return c.Blob(http.StatusOK, f.mediaType, f.content)
}
