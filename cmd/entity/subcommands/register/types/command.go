package types

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/common"
	"github.com/openbraininstitute/entitykit/pkg/entity"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/youta-t/flarc"
)

const ARG_TYPE = "TYPE"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"List entity types which can be registered, with their fields.",
		struct{}{},
		flarc.Args{
			{
				Name: ARG_TYPE, Required: false, Repeatable: true,
				Help: "Show only these types.",
			},
		},
		common.NewTaskWithCommonFlag(Task(entity.DefaultRegistry())),
	)
}

func Task(reg *entity.Registry) common.TaskWithCommonFlag[struct{}] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		_ common.CommonFlags,
		cl flarc.Commandline[struct{}],
		params []any,
	) error {
		names := cl.Args()[ARG_TYPE]
		if len(names) == 0 {
			names = reg.Known()
		}

		classes := make([]*entity.Class, 0, len(names))
		for _, n := range names {
			c, ok := reg.Lookup(n)
			if !ok {
				return fmt.Errorf("%w: Entity type not implemented: '%s'", forge.ErrUnknownType, n)
			}
			classes = append(classes, c)
		}

		for i, c := range classes {
			if i != 0 {
				fmt.Fprintln(cl.Stdout())
			}
			if err := describe(cl.Stdout(), c); err != nil {
				return err
			}
		}
		return nil
	}
}

func describe(w io.Writer, c *entity.Class) error {
	header := c.Name()
	if c.Abstract() {
		header += " (abstract)"
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	if anc := c.Ancestors(); len(anc) > 1 {
		fmt.Fprintf(w, "    extends: %s\n", strings.Join(anc[1:], " < "))
	}

	fields := c.Fields()
	if len(fields) == 0 {
		_, err := fmt.Fprintln(w, "    (no fields)")
		return err
	}

	width := 0
	for _, f := range fields {
		width = max(width, len(f.Name))
	}
	for _, f := range fields {
		kind := f.Kind.String()
		switch f.Kind {
		case entity.Enum:
			kind += " [" + strings.Join(f.Values, ", ") + "]"
		case entity.Nested:
			kind += " " + f.Schema
		}
		if f.Required {
			kind += " (required)"
		}
		if _, err := fmt.Fprintf(w, "    %-*s  %s\n", width, f.Name, kind); err != nil {
			return err
		}
	}
	return nil
}
