// Package memstore is an in-memory forge.Store.
//
// It keeps every revision of registered resources and remembers the calls
// it receives, so engines can be tested without a remote store.
package memstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
)

const DefaultBase = "https://bbp.epfl.ch/data/memstore"

type AttachCall struct {
	Path        string
	ContentType string
}

type RetrieveCall struct {
	ID          string
	CrossBucket bool
}

type RegisterCall struct {
	Resource *forge.Resource
	SchemaID string
}

type Store struct {
	mu sync.Mutex

	base    string
	project string
	user    string
	now     func() time.Time
	reject  func(*forge.Resource) string
	schemas map[string]string

	revisions map[string][]*forge.Resource
	files     map[string]string

	// calls, in order
	Retrieved  []RetrieveCall
	Attached   []AttachCall
	Registered []RegisterCall
}

var _ forge.Store = &Store{}

type Option func(*Store) *Store

// WithBase sets the prefix of ids assigned by the store.
func WithBase(base string) Option {
	return func(s *Store) *Store {
		s.base = strings.TrimSuffix(base, "/")
		return s
	}
}

// WithProject sets the "org/project" recorded in store metadata.
func WithProject(project string) Option {
	return func(s *Store) *Store {
		s.project = project
		return s
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) *Store {
		s.now = now
		return s
	}
}

// WithRejection makes Register reject resources.
//
// reject returns the rejection message, or "" to accept the resource.
func WithRejection(reject func(*forge.Resource) string) Option {
	return func(s *Store) *Store {
		s.reject = reject
		return s
	}
}

// WithSchema maps a type to a schema id, for SchemaID.
func WithSchema(schemaType string, schemaID string) Option {
	return func(s *Store) *Store {
		s.schemas[schemaType] = schemaID
		return s
	}
}

func New(options ...Option) *Store {
	s := &Store{
		base:      DefaultBase,
		project:   "test/memstore",
		user:      "memstore",
		now:       time.Now,
		schemas:   map[string]string{},
		revisions: map[string][]*forge.Resource{},
		files:     map[string]string{},
	}
	for _, o := range options {
		s = o(s)
	}
	return s
}

// Put stores a resource body as it is, as a new revision.
//
// When the body has no "id", a new one is assigned.
// It returns the stored resource.
func (s *Store) Put(body *jsonld.Object) *forge.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := forge.NewResource(body.Clone())
	s.put(r)
	return r.Clone()
}

func (s *Store) put(r *forge.Resource) {
	id := r.ID()
	if id == "" {
		id = s.base + "/" + uuid.NewString()
		r.Body.Set("id", id)
	}
	now := s.now().UTC().Format(time.RFC3339)
	revs := s.revisions[id]
	md := &forge.StoreMetadata{
		Self:      s.base + "/resources/" + s.project + "/_/" + uuid.NewString(),
		Project:   s.base + "/projects/" + s.project,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: s.user,
		UpdatedBy: s.user,
		Rev:       len(revs) + 1,
	}
	if 0 < len(revs) {
		first := revs[0].Metadata
		md.Self = first.Self
		md.CreatedAt = first.CreatedAt
		md.CreatedBy = first.CreatedBy
	}
	r.Metadata = md
	s.revisions[id] = append(revs, r.Clone())
}

func splitRev(id string) (string, int, error) {
	base, rev, ok := strings.Cut(id, "?rev=")
	if !ok {
		return id, 0, nil
	}
	n, err := strconv.Atoi(rev)
	if err != nil {
		return "", 0, fmt.Errorf("malformed revision in %s: %w", id, err)
	}
	return base, n, nil
}

func (s *Store) Retrieve(_ context.Context, id string, crossBucket bool) (*forge.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Retrieved = append(s.Retrieved, RetrieveCall{ID: id, CrossBucket: crossBucket})

	base, rev, err := splitRev(id)
	if err != nil {
		return nil, err
	}
	revs, ok := s.revisions[base]
	if !ok {
		return nil, fmt.Errorf("%w: %s", forge.ErrNotFound, id)
	}
	if rev == 0 {
		return revs[len(revs)-1].Clone(), nil
	}
	if rev < 1 || len(revs) < rev {
		return nil, fmt.Errorf("%w: %s", forge.ErrNotFound, id)
	}
	return revs[rev-1].Clone(), nil
}

func (s *Store) Search(_ context.Context, filter map[string]any, _ bool) ([]*forge.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret := []*forge.Resource{}
	for _, revs := range s.revisions {
		latest := revs[len(revs)-1]
		matched := true
		for k, want := range filter {
			got, ok := latest.Body.Get(k)
			if !ok || !jsonld.Equal(got, want) {
				matched = false
				break
			}
		}
		if matched {
			ret = append(ret, latest.Clone())
		}
	}
	return ret, nil
}

func (s *Store) Attach(_ context.Context, path string, contentType string) (*jsonld.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Attached = append(s.Attached, AttachCall{Path: path, ContentType: contentType})

	dd := forge.LocalAttach(path, contentType)
	url := s.base + "/files/" + s.project + "/" + uuid.NewString()
	dd.Set("contentUrl", url)
	s.files[url] = path
	return dd, nil
}

func (s *Store) Register(_ context.Context, r *forge.Resource, schemaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Registered = append(s.Registered, RegisterCall{Resource: r.Clone(), SchemaID: schemaID})

	if s.reject != nil {
		if msg := s.reject(r); msg != "" {
			r.LastAction = &forge.Action{Succeeded: false, Message: msg}
			return nil
		}
	}
	if id := r.ID(); id != "" {
		if _, ok := s.revisions[id]; ok {
			r.LastAction = &forge.Action{
				Succeeded: false,
				Message:   fmt.Sprintf("resource '%s' already exists in project '%s'", id, s.project),
			}
			return nil
		}
	}

	stored := forge.NewResource(r.Body.Clone())
	s.put(stored)
	if schemaID != "" {
		stored.Metadata.ConstrainedBy = schemaID
		s.revisions[stored.ID()][stored.Metadata.Rev-1].Metadata.ConstrainedBy = schemaID
	}
	r.Body.Set("id", stored.ID())
	md := *stored.Metadata
	r.Metadata = &md
	r.LastAction = &forge.Action{Succeeded: true, Message: "registered"}
	return nil
}

func (s *Store) SchemaID(_ context.Context, schemaType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.schemas[schemaType]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s", forge.ErrNoSchema, schemaType)
}

func (s *Store) Reshape(r *forge.Resource, fields []string) *jsonld.Object {
	return forge.Reshape(r.Body, fields)
}

// Download copies the file which was attached as the distribution.
func (s *Store) Download(_ context.Context, distribution *jsonld.Object, dir string) (string, error) {
	url, ok := distribution.GetString("contentUrl")
	if !ok {
		return "", fmt.Errorf("distribution has no contentUrl")
	}
	s.mu.Lock()
	src, ok := s.files[url]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", forge.ErrNotFound, url)
	}

	name, ok := distribution.GetString("name")
	if !ok || name == "" {
		name = filepath.Base(src)
	}
	dest := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, os.FileMode(0755)); err != nil {
		return "", err
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return "", err
	}
	return dest, nil
}
