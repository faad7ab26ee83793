package materialize

import (
	"context"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/common"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/materialize"
	"github.com/youta-t/flarc"
)

type Flags struct {
	Output string `flag:"output" alias:"o" metavar:"path/to/output.json" help:"Write the result also to this file."`
}

const ARG_ID = "ID"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Resolve a grouped dataset into a nested mapping of local paths.",
		Flags{},
		flarc.Args{
			{
				Name: ARG_ID, Required: true,
				Help: "ID of the grouped dataset resource.",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Resolve a grouped dataset resource into a nested mapping, and print it as JSON.

The kind of the dataset is decided by its "about". Supported ones are:

    `+strings.Join(materialize.Supported(), "\n    ")+`

For METypeDensity, the result is

    {mtype id: {label, etypes: {etype id: {label, path}}}}
`),
	)
}

func Task(
	ctx context.Context,
	logger *log.Logger,
	store forge.Store,
	cl flarc.Commandline[Flags],
	params []any,
) error {
	options := []materialize.Option{materialize.WithLogger(logger)}
	if out := cl.Flags().Output; out != "" {
		options = append(options, materialize.WithOutputFile(out))
	}
	groups, err := materialize.Materialize(ctx, store, cl.Args()[ARG_ID][0], options...)
	if err != nil {
		return err
	}
	return common.WriteJSON(cl.Stdout(), groups)
}
