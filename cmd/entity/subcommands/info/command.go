package info

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/labstack/gommon/color"
	"github.com/labstack/gommon/log"
	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/common"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
	"github.com/youta-t/flarc"
)

type Flags struct {
	Metadata    bool `flag:"metadata" alias:"m" help:"Print store metadata (_self, _rev, ...) with the resource."`
	RawResource bool `flag:"raw-resource" help:"Print nested objects as they are, including their '_' prefixed keys."`
}

const ARG_ID = "ID"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Show a resource and its store metadata.",
		Flags{},
		flarc.Args{
			{
				Name: ARG_ID, Required: true,
				Help: "ID of the resource. It can be qualified with ?rev=N.",
			},
		},
		common.NewTask(Task),
	)
}

func Task(
	ctx context.Context,
	logger *log.Logger,
	store forge.Store,
	cl flarc.Commandline[Flags],
	params []any,
) error {
	flags := cl.Flags()
	id := cl.Args()[ARG_ID][0]

	res, err := store.Retrieve(ctx, id, true)
	if err != nil {
		return err
	}

	c := color.New()
	c.SetOutput(cl.Stdout())
	if res.Metadata != nil {
		summary(cl.Stdout(), c, res.ID(), res.Metadata)
	} else {
		logger.Warnf("resource %s has no store metadata", id)
	}

	body := res.AsJSON(flags.Metadata)
	if !flags.RawResource {
		for k, v := range body.Iter() {
			body.Set(k, hideUnderscored(v))
		}
	}
	return common.WriteJSON(cl.Stdout(), body)
}

const rule = "────────────────────────────────────────"

const timeLayout = "2006-01-02 15:04:05Z07:00"

func summary(w io.Writer, c *color.Color, id string, md *forge.StoreMetadata) {
	fmt.Fprintln(w, rule)

	if md.Project != "" {
		segments := strings.Split(md.Project, "/")
		if 2 <= len(segments) {
			n := len(segments)
			head := strings.Join(segments[:n-2], "/")
			if head != "" {
				head += "/"
			}
			fmt.Fprintf(w, "%s: %s%s\n", c.Green("Project"), head, c.Green(segments[n-2]+"/"+segments[n-1]))
		} else {
			fmt.Fprintf(w, "%s: %s\n", c.Green("Project"), md.Project)
		}
	}

	fmt.Fprintf(w, "%s: %s?rev=%d\n", c.Green("Full ID"), id, md.Rev)
	fmt.Fprintf(w, "%s: %s / %s\n", c.Green("Created / Updated by"), md.CreatedBy, md.UpdatedBy)

	created, cerr := time.Parse(time.RFC3339Nano, md.CreatedAt)
	updated, uerr := time.Parse(time.RFC3339Nano, md.UpdatedAt)
	if cerr == nil && uerr == nil {
		created = created.Truncate(time.Second)
		updated = updated.Truncate(time.Second)
		fmt.Fprintf(
			w, "%s: %s / %s -> diff %s\n", c.Green("Created / Updated at"),
			created.Format(timeLayout), updated.Format(timeLayout), updated.Sub(created),
		)
	} else {
		fmt.Fprintf(w, "%s: %s / %s\n", c.Green("Created / Updated at"), md.CreatedAt, md.UpdatedAt)
	}

	if md.Self != "" && md.Self != id {
		fmt.Fprintf(w, "%s %s != %s\n", c.Red("_self != id:"), id, md.Self)
	}
	if md.Deprecated {
		fmt.Fprintln(w, c.Red("Deprecated"))
	}

	fmt.Fprintln(w, rule)
}

// hideUnderscored removes keys starting with "_" from nested objects.
func hideUnderscored(v any) any {
	switch t := v.(type) {
	case *jsonld.Object:
		ret := jsonld.NewObject()
		for k, val := range t.Iter() {
			if strings.HasPrefix(k, "_") {
				continue
			}
			ret.Set(k, hideUnderscored(val))
		}
		return ret
	case []any:
		ret := make([]any, len(t))
		for i, val := range t {
			ret[i] = hideUnderscored(val)
		}
		return ret
	default:
		return v
	}
}
