package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/labstack/gommon/log"
	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/common"
	"github.com/openbraininstitute/entitykit/pkg/entity"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/register"
	"github.com/openbraininstitute/entitykit/pkg/utils/filewatch"
	"github.com/youta-t/flarc"
)

type Flags struct {
	DryRun   bool   `flag:"dry-run" alias:"n" help:"Do not register. Print what would be registered."`
	Validate bool   `flag:"validate" help:"Validate resources with the schema of their types."`
	Defaults string `flag:"defaults" metavar:"path/to/defaults.yaml" help:"Default values per type, replacing the builtin ones."`
	Watch    bool   `flag:"watch" alias:"w" help:"Dry-run again each time the files are modified, until interrupted. Implies --dry-run."`
}

const ARG_FILE = "FILE"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Register entities defined in YAML or JSON files.",
		Flags{},
		flarc.Args{
			{
				Name: ARG_FILE, Required: true, Repeatable: true,
				Help: "Definition file of an entity (.yml, .yaml or .json).",
			},
		},
		common.NewTask(Task(entity.DefaultRegistry())),
		flarc.WithDescription(`
Register entities defined in files.

Each file defines one entity, with its "type" and fields.
Relative paths in a definition are resolved from the directory of the file.

To see what would be registered:

    {{ .Command }} --dry-run atlas_release.yaml

To check definitions while editing them:

    {{ .Command }} --watch atlas_release.yaml

Types which can be registered are listed by "entity register types".
`),
	)
}

func Task(reg *entity.Registry) common.Task[Flags] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		store forge.Store,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		flags := cl.Flags()
		files := cl.Args()[ARG_FILE]

		defaults := entity.DefaultDefaults()
		if flags.Defaults != "" {
			d, err := entity.LoadDefaults(flags.Defaults)
			if err != nil {
				return err
			}
			defaults = d
		}

		options := []register.Option{register.WithLogger(logger)}
		if flags.DryRun || flags.Watch {
			options = append(options, register.DryRun())
		}
		if flags.Validate {
			options = append(options, register.Validate())
		}

		run := func() error {
			for _, f := range files {
				_, res, err := register.RegisterFile(ctx, store, reg, defaults, f, options...)
				if err != nil {
					return err
				}
				if err := common.WriteJSON(cl.Stdout(), res.AsJSON(true)); err != nil {
					return err
				}
			}
			return nil
		}

		if !flags.Watch {
			return run()
		}

		for {
			if err := run(); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				logger.Error(err)
			}

			wctx, cancel, err := filewatch.UntilModifyContext(ctx, files...)
			if err != nil {
				return fmt.Errorf("cannot watch files: %w", err)
			}
			<-wctx.Done()
			cancel()
			if ctx.Err() != nil {
				return nil
			}
			logger.Infof("modified: %v", context.Cause(wctx))
		}
	}
}
