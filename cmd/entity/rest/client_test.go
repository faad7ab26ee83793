package rest_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prof "github.com/openbraininstitute/entitykit/cmd/entity/config/profiles"
	"github.com/openbraininstitute/entitykit/cmd/entity/rest"
	ctxutil "github.com/openbraininstitute/entitykit/internal/testutils/context"
	"github.com/openbraininstitute/entitykit/internal/testutils/nexus"
	"github.com/openbraininstitute/entitykit/pkg/cmp"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
	"github.com/openbraininstitute/entitykit/pkg/utils/retry"
	"github.com/openbraininstitute/entitykit/pkg/utils/try"
)

func quickRetry(n int) rest.Option {
	return rest.WithBackoff(func() retry.Backoff {
		return retry.Limit(n, retry.StaticBackoff(time.Millisecond))
	})
}

func newClient(t *testing.T, srv *nexus.Server, token string, options ...rest.Option) forge.Store {
	t.Helper()
	p := &prof.Profile{
		Endpoint: srv.URL,
		Bucket:   "bbp/atlas",
		Schemas: map[string]string{
			"BrainAtlasRelease": "https://neuroshapes.org/dash/brainatlasrelease",
		},
	}
	return try.To(rest.NewClient(p, "", token, append([]rest.Option{quickRetry(3)}, options...)...)).OrFatal(t)
}

func countRequests(srv *nexus.Server, prefix string) int {
	n := 0
	for _, r := range srv.Requests() {
		if strings.HasPrefix(r, prefix) {
			n += 1
		}
	}
	return n
}

func TestNewClient(t *testing.T) {
	theory := func(p *prof.Profile, bucket string) func(*testing.T) {
		return func(t *testing.T) {
			_, err := rest.NewClient(p, bucket, "")
			if !errors.Is(err, prof.ErrProfileInvalid) {
				t.Errorf("unexpected error: %v", err)
			}
		}
	}

	t.Run("endpoint is not URL", theory(&prof.Profile{Endpoint: "nexus"}, ""))
	t.Run("bucket is not org/project", theory(&prof.Profile{Endpoint: "https://example.com"}, "atlas"))
	t.Run("bucket has too many segments", theory(&prof.Profile{Endpoint: "https://example.com"}, "bbp/atlas/x"))
}

func TestRetrieve(t *testing.T) {
	ctx := ctxutil.WithTest(t)

	payload := func(name string) *jsonld.Object {
		return jsonld.NewObject(
			jsonld.P("@context", prof.DefaultContext),
			jsonld.P("@id", "https://bbp.epfl.ch/data/release"),
			jsonld.P("@type", []any{"BrainAtlasRelease", "Entity"}),
			jsonld.P("name", name),
			jsonld.P("brainTemplateDataLayer", jsonld.NewObject(
				jsonld.P("@id", "https://bbp.epfl.ch/data/template"),
				jsonld.P("@type", "BrainTemplateDataLayer"),
			)),
		)
	}

	t.Run("it converts the payload into a resource", func(t *testing.T) {
		srv := nexus.New(t)
		id := srv.Put("bbp/atlas", payload("v1"))
		testee := newClient(t, srv, "")

		actual := try.To(testee.Retrieve(ctx, id, false)).OrFatal(t)

		expected := jsonld.NewObject(
			jsonld.P("id", id),
			jsonld.P("type", []any{"BrainAtlasRelease", "Entity"}),
			jsonld.P("name", "v1"),
			jsonld.P("brainTemplateDataLayer", jsonld.NewObject(
				jsonld.P("id", "https://bbp.epfl.ch/data/template"),
				jsonld.P("type", "BrainTemplateDataLayer"),
			)),
		)
		if !jsonld.Equal(actual.Body, expected) {
			t.Errorf("body:\n===actual===\n%s\n===expected===\n%s", actual.Body, expected)
		}
		md := actual.Metadata
		if md == nil {
			t.Fatal("metadata is not set")
		}
		if md.Rev != 1 || md.Deprecated || md.ConstrainedBy != nexus.Unconstrained {
			t.Errorf("unexpected metadata: %+v", md)
		}
		if !strings.HasPrefix(md.Self, srv.URL+"/resources/bbp/atlas/_/") {
			t.Errorf("unexpected self: %s", md.Self)
		}
	})

	t.Run("it retrieves the revision in id", func(t *testing.T) {
		srv := nexus.New(t)
		id := srv.Put("bbp/atlas", payload("v1"))
		srv.Put("bbp/atlas", payload("v2"))
		testee := newClient(t, srv, "")

		latest := try.To(testee.Retrieve(ctx, id, false)).OrFatal(t)
		first := try.To(testee.Retrieve(ctx, id+"?rev=1", false)).OrFatal(t)

		if name, _ := latest.Body.GetString("name"); name != "v2" || latest.Metadata.Rev != 2 {
			t.Errorf("latest: %s (rev = %d)", latest.Body, latest.Metadata.Rev)
		}
		if name, _ := first.Body.GetString("name"); name != "v1" || first.Metadata.Rev != 1 {
			t.Errorf("first: %s (rev = %d)", first.Body, first.Metadata.Rev)
		}
	})

	t.Run("it caches retrieved resources", func(t *testing.T) {
		srv := nexus.New(t)
		id := srv.Put("bbp/atlas", payload("v1"))
		testee := newClient(t, srv, "")

		r1 := try.To(testee.Retrieve(ctx, id, false)).OrFatal(t)
		r1.Body.Set("name", "modified")
		r2 := try.To(testee.Retrieve(ctx, id, false)).OrFatal(t)

		if n := countRequests(srv, "GET /resources/"); n != 1 {
			t.Errorf("requests: %d, %v", n, srv.Requests())
		}
		if name, _ := r2.Body.GetString("name"); name != "v1" {
			t.Errorf("cached resource is modified: %s", r2.Body)
		}
	})

	t.Run("without cache, it always asks the server", func(t *testing.T) {
		srv := nexus.New(t)
		id := srv.Put("bbp/atlas", payload("v1"))
		testee := newClient(t, srv, "", rest.WithCacheTTL(0))

		try.To(testee.Retrieve(ctx, id, false)).OrFatal(t)
		try.To(testee.Retrieve(ctx, id, false)).OrFatal(t)

		if n := countRequests(srv, "GET /resources/"); n != 2 {
			t.Errorf("requests: %d, %v", n, srv.Requests())
		}
	})

	t.Run("resources in other buckets are found only across buckets", func(t *testing.T) {
		srv := nexus.New(t)
		id := srv.Put("bbp/other", payload("v1"))
		testee := newClient(t, srv, "")

		if _, err := testee.Retrieve(ctx, id, false); !errors.Is(err, forge.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
		actual := try.To(testee.Retrieve(ctx, id, true)).OrFatal(t)
		if actual.ID() != id {
			t.Errorf("unexpected resource: %s", actual.Body)
		}
		if n := countRequests(srv, "GET /resolvers/bbp/atlas/_/"); n != 1 {
			t.Errorf("requests: %v", srv.Requests())
		}
	})

	t.Run("unknown revision is not found", func(t *testing.T) {
		srv := nexus.New(t)
		id := srv.Put("bbp/atlas", payload("v1"))
		testee := newClient(t, srv, "")

		if _, err := testee.Retrieve(ctx, id+"?rev=3", false); !errors.Is(err, forge.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it sends the token", func(t *testing.T) {
		srv := nexus.New(t, nexus.WithToken("secret"))
		id := srv.Put("bbp/atlas", payload("v1"))

		try.To(newClient(t, srv, "secret").Retrieve(ctx, id, false)).OrFatal(t)

		_, err := newClient(t, srv, "wrong").Retrieve(ctx, id, false)
		if err == nil || errors.Is(err, forge.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
		if !strings.Contains(err.Error(), "AuthorizationFailed") {
			t.Errorf("error message does not tell the reason: %s", err)
		}
	})

	t.Run("it retries when the server is unavailable", func(t *testing.T) {
		srv := nexus.New(t)
		id := srv.Put("bbp/atlas", payload("v1"))
		srv.FailNext(2)

		actual := try.To(newClient(t, srv, "").Retrieve(ctx, id, false)).OrFatal(t)
		if actual.ID() != id {
			t.Errorf("unexpected resource: %s", actual.Body)
		}
	})

	t.Run("it gives up retrying", func(t *testing.T) {
		srv := nexus.New(t)
		id := srv.Put("bbp/atlas", payload("v1"))
		srv.FailNext(5)

		_, err := newClient(t, srv, "", quickRetry(1)).Retrieve(ctx, id, false)
		if !errors.Is(err, retry.ErrGaveUp) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestRegister(t *testing.T) {
	ctx := ctxutil.WithTest(t)

	body := func() *jsonld.Object {
		return jsonld.NewObject(
			jsonld.P("type", "BrainAtlasRelease"),
			jsonld.P("name", "release"),
			jsonld.P("parcellationOntology", jsonld.NewObject(
				jsonld.P("id", "https://bbp.epfl.ch/data/ontology"),
				jsonld.P("type", "ParcellationOntology"),
			)),
		)
	}

	t.Run("a resource without id is created with a new id", func(t *testing.T) {
		srv := nexus.New(t)
		testee := newClient(t, srv, "")

		r := forge.NewResource(body())
		if err := testee.Register(ctx, r, ""); err != nil {
			t.Fatal(err)
		}
		if r.LastAction == nil || !r.LastAction.Succeeded {
			t.Fatalf("unexpected action: %+v", r.LastAction)
		}
		if !strings.HasPrefix(r.ID(), nexus.DefaultBase+"/") {
			t.Errorf("unexpected id: %s", r.ID())
		}
		if r.Metadata == nil || r.Metadata.Rev != 1 || r.Metadata.ConstrainedBy != nexus.Unconstrained {
			t.Errorf("unexpected metadata: %+v", r.Metadata)
		}
		if want := []string{"POST /resources/bbp/atlas/_"}; !cmp.SliceEq(srv.Requests(), want) {
			t.Errorf("requests: %v", srv.Requests())
		}

		stored := srv.Revisions(r.ID())
		if len(stored) != 1 {
			t.Fatalf("revisions: %d", len(stored))
		}
		for k, want := range map[string]any{
			"@context": prof.DefaultContext,
			"@id":      r.ID(),
			"@type":    "BrainAtlasRelease",
			"name":     "release",
		} {
			if v, _ := stored[0].Get(k); !jsonld.Equal(v, want) {
				t.Errorf("%s: expected %v, got %v", k, want, v)
			}
		}
		onto, _ := stored[0].GetObject("parcellationOntology")
		if !onto.Has("@id") || !onto.Has("@type") {
			t.Errorf("nested keywords are not converted: %s", onto)
		}
	})

	t.Run("a resource with id is created with the id and the schema", func(t *testing.T) {
		srv := nexus.New(t)
		testee := newClient(t, srv, "")

		b := body()
		b.Set("id", "https://bbp.epfl.ch/data/release")
		r := forge.NewResource(b)
		if err := testee.Register(ctx, r, "https://neuroshapes.org/dash/brainatlasrelease"); err != nil {
			t.Fatal(err)
		}
		if r.ID() != "https://bbp.epfl.ch/data/release" {
			t.Errorf("id is changed: %s", r.ID())
		}
		if r.Metadata.ConstrainedBy != "https://neuroshapes.org/dash/brainatlasrelease" {
			t.Errorf("unexpected schema: %s", r.Metadata.ConstrainedBy)
		}
		if want := []string{
			"PUT /resources/bbp/atlas/https://neuroshapes.org/dash/brainatlasrelease/https://bbp.epfl.ch/data/release",
		}; !cmp.SliceEq(srv.Requests(), want) {
			t.Errorf("requests: %v", srv.Requests())
		}
	})

	t.Run("rejection is reported in the last action", func(t *testing.T) {
		srv := nexus.New(t, nexus.WithRejection(func(payload *jsonld.Object, schema string) string {
			return "name is too short"
		}))
		testee := newClient(t, srv, "")

		r := forge.NewResource(body())
		err := forge.Submit(ctx, testee, r, "")
		if r.LastAction == nil || r.LastAction.Succeeded {
			t.Fatalf("unexpected action: %+v", r.LastAction)
		}
		if r.LastAction.Message != "InvalidResource: name is too short" {
			t.Errorf("unexpected message: %s", r.LastAction.Message)
		}
		rf := new(forge.RegistrationFailure)
		if !errors.As(err, &rf) || rf.Message != r.LastAction.Message {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("an existing id is rejected", func(t *testing.T) {
		srv := nexus.New(t)
		srv.Put("bbp/atlas", jsonld.NewObject(jsonld.P("@id", "https://bbp.epfl.ch/data/release")))
		testee := newClient(t, srv, "")

		b := body()
		b.Set("id", "https://bbp.epfl.ch/data/release")
		r := forge.NewResource(b)
		if err := testee.Register(ctx, r, ""); err != nil {
			t.Fatal(err)
		}
		if r.LastAction.Succeeded || !strings.HasPrefix(r.LastAction.Message, "ResourceAlreadyExists") {
			t.Errorf("unexpected action: %+v", r.LastAction)
		}
		if r.Metadata != nil {
			t.Errorf("metadata is set: %+v", r.Metadata)
		}
	})
}

func TestSearch(t *testing.T) {
	ctx := ctxutil.WithTest(t)
	srv := nexus.New(t)
	put := func(project string, typ string, name string) string {
		return srv.Put(project, jsonld.NewObject(
			jsonld.P("@type", []any{typ, "Entity"}),
			jsonld.P("name", name),
		))
	}
	a := put("bbp/atlas", "BrainParcellationDataLayer", "annotation")
	put("bbp/atlas", "BrainParcellationDataLayer", "hemispheres")
	put("bbp/atlas", "CellDensityDataLayer", "annotation")
	b := put("bbp/other", "BrainParcellationDataLayer", "annotation")

	testee := newClient(t, srv, "")

	theory := func(filter map[string]any, crossBucket bool, expected []string) func(*testing.T) {
		return func(t *testing.T) {
			found := try.To(testee.Search(ctx, filter, crossBucket)).OrFatal(t)
			actual := []string{}
			for _, r := range found {
				actual = append(actual, r.ID())
			}
			if !cmp.SliceContentEq(actual, expected) {
				t.Errorf("found: expected %v, got %v", expected, actual)
			}
		}
	}

	t.Run("by type and name", theory(
		map[string]any{"type": "BrainParcellationDataLayer", "name": "annotation"}, false,
		[]string{a},
	))
	t.Run("across buckets", theory(
		map[string]any{"type": "BrainParcellationDataLayer", "name": "annotation"}, true,
		[]string{a, b},
	))
	t.Run("no match", theory(
		map[string]any{"type": "BrainParcellationDataLayer", "name": "nothing"}, false,
		[]string{},
	))
}

func TestAttachAndDownload(t *testing.T) {
	ctx := ctxutil.WithTest(t)
	srv := nexus.New(t)
	testee := newClient(t, srv, "")

	src := filepath.Join(t.TempDir(), "annotation.nrrd")
	content := []byte("NRRD0004\nfake content")
	if err := os.WriteFile(src, content, 0644); err != nil {
		t.Fatal(err)
	}

	dd := try.To(testee.Attach(ctx, src, "")).OrFatal(t)

	for k, want := range map[string]any{
		"type":           "DataDownload",
		"name":           "annotation.nrrd",
		"encodingFormat": "application/nrrd",
	} {
		if v, _ := dd.Get(k); !jsonld.Equal(v, want) {
			t.Errorf("%s: expected %v, got %v", k, want, v)
		}
	}
	size, _ := dd.GetObject("contentSize")
	if v, _ := size.Get("value"); !jsonld.Equal(v, len(content)) {
		t.Errorf("contentSize: %s", size)
	}
	loc, ok := forge.Location(dd)
	if !ok || !strings.HasPrefix(loc, "file:///nexus/storage/") || !strings.HasSuffix(loc, "/annotation.nrrd") {
		t.Errorf("location: %s", loc)
	}
	contentUrl, _ := dd.GetString("contentUrl")
	if !strings.HasPrefix(contentUrl, srv.URL+"/files/bbp/atlas/") {
		t.Errorf("contentUrl: %s", contentUrl)
	}

	dir := filepath.Join(t.TempDir(), "out")
	dest := try.To(testee.Download(ctx, dd, dir)).OrFatal(t)
	if dest != filepath.Join(dir, "annotation.nrrd") {
		t.Errorf("downloaded to %s", dest)
	}
	if got := try.To(os.ReadFile(dest)).OrFatal(t); string(got) != string(content) {
		t.Errorf("content: %q", got)
	}

	t.Run("unknown file is not found", func(t *testing.T) {
		missing := jsonld.NewObject(
			jsonld.P("name", "missing.nrrd"),
			jsonld.P("contentUrl", srv.URL+"/files/bbp/atlas/missing"),
		)
		_, err := testee.Download(ctx, missing, t.TempDir())
		if !errors.Is(err, forge.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("distribution without contentUrl is invalid", func(t *testing.T) {
		_, err := testee.Download(ctx, jsonld.NewObject(jsonld.P("name", "x")), t.TempDir())
		if !errors.Is(err, forge.ErrValidation) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("missing file is not uploaded", func(t *testing.T) {
		_, err := testee.Attach(ctx, filepath.Join(t.TempDir(), "missing.nrrd"), "")
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestSchemaID(t *testing.T) {
	ctx := ctxutil.WithTest(t)
	testee := newClient(t, nexus.New(t), "")

	id := try.To(testee.SchemaID(ctx, "BrainAtlasRelease")).OrFatal(t)
	if id != "https://neuroshapes.org/dash/brainatlasrelease" {
		t.Errorf("unexpected schema: %s", id)
	}
	if _, err := testee.SchemaID(ctx, "Entity"); !errors.Is(err, forge.ErrNoSchema) {
		t.Errorf("unexpected error: %v", err)
	}
}
