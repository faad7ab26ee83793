package info_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	info_cmd "github.com/openbraininstitute/entitykit/cmd/entity/subcommands/info"
	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/internal/commandline"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/forge/memstore"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
	"github.com/openbraininstitute/entitykit/pkg/utils/logger"
)

func TestInfo(t *testing.T) {
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := memstore.New(
		memstore.WithProject("bbp/atlas"),
		memstore.WithClock(func() time.Time {
			now := clock
			clock = clock.Add(90 * time.Minute)
			return now
		}),
	)
	first := store.Put(jsonld.NewObject(
		jsonld.P("type", "BrainAtlasRelease"),
		jsonld.P("name", "release"),
		jsonld.P("parcellationOntology", jsonld.NewObject(
			jsonld.P("id", "https://bbp.epfl.ch/data/ontology"),
			jsonld.P("_rev", 3),
		)),
	))
	body := first.Body.Clone()
	body.Set("name", "release v2")
	store.Put(body)

	type Then struct {
		err      error
		contains []string
		excludes []string
	}
	theory := func(flags info_cmd.Flags, id string, then Then) func(*testing.T) {
		return func(t *testing.T) {
			stdout := new(strings.Builder)
			err := info_cmd.Task(
				context.Background(), logger.Null(), store,
				commandline.MockCommandline[info_cmd.Flags]{
					Stdout_: stdout,
					Flags_:  flags,
					Args_:   map[string][]string{info_cmd.ARG_ID: {id}},
				},
				nil,
			)
			if !errors.Is(err, then.err) {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, want := range then.contains {
				if !strings.Contains(stdout.String(), want) {
					t.Errorf("stdout does not contain %q:\n%s", want, stdout.String())
				}
			}
			for _, unwanted := range then.excludes {
				if strings.Contains(stdout.String(), unwanted) {
					t.Errorf("stdout contains %q:\n%s", unwanted, stdout.String())
				}
			}
		}
	}

	t.Run("it shows the latest revision with summary", theory(info_cmd.Flags{}, first.ID(), Then{
		contains: []string{
			"Project: " + memstore.DefaultBase + "/projects/bbp/atlas\n",
			"Full ID: " + first.ID() + "?rev=2\n",
			"Created / Updated by: memstore / memstore\n",
			"Created / Updated at: 2024-05-01 10:00:00Z / 2024-05-01 11:30:00Z -> diff 1h30m0s\n",
			"_self != id: " + first.ID() + " != " + first.Metadata.Self + "\n",
			`"name": "release v2"`,
		},
		excludes: []string{`"_rev"`, `"_self"`, "Deprecated"},
	}))

	t.Run("a revision can be chosen", theory(info_cmd.Flags{}, first.ID()+"?rev=1", Then{
		contains: []string{"?rev=1\n", `"name": "release"`, "-> diff 0s"},
	}))

	t.Run("metadata is printed on demand", theory(info_cmd.Flags{Metadata: true}, first.ID(), Then{
		contains: []string{`"_self": "` + first.Metadata.Self + `"`, `"_rev": 2`},
	}))

	t.Run("raw resource keeps nested metadata", theory(info_cmd.Flags{RawResource: true}, first.ID(), Then{
		contains: []string{`"_rev": 3`},
	}))

	t.Run("missing resource is an error", theory(info_cmd.Flags{}, memstore.DefaultBase+"/nothing", Then{
		err: forge.ErrNotFound,
	}))
}
