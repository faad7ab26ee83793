package clone

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/common"
	"github.com/openbraininstitute/entitykit/pkg/clone"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/youta-t/flarc"
)

type Flags struct {
	To string `flag:"to" metavar:"ENV[:ORG/PROJECT]" help:"Destination of the clone. When bucket is omitted, the bucket of the environment is used."`
}

const ARG_ID = "ID"

// Connector creates a store for the environment and the bucket.
type Connector func(logger *log.Logger, cf common.CommonFlags, env string, bucket string) (forge.Store, error)

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Clone a grouped dataset resource and resources it refers to another bucket.",
		Flags{},
		flarc.Args{
			{
				Name: ARG_ID, Required: true,
				Help: "ID of the resource to be cloned. It can be qualified with ?rev=N.",
			},
		},
		common.NewTaskWithCommonFlag(Task(common.Connect)),
		flarc.WithDescription(`
Clone a resource whose distribution is a grouped dataset, from the environment
and bucket given by --env and --bucket to the destination given by --to.

Resources referred from the dataset are cloned too, and the dataset attached to
the new resource refers to the cloned ones.

    {{ .Command }} --to staging:bbp/sandbox https://bbp.epfl.ch/neurosciencegraph/data/...
`),
	)
}

// ParseDestination splits "ENV[:ORG/PROJECT]".
func ParseDestination(to string) (env string, bucket string, err error) {
	env, bucket, _ = strings.Cut(to, ":")
	if env == "" {
		return "", "", fmt.Errorf("%w: --to should be ENV[:ORG/PROJECT]: '%s'", flarc.ErrUsage, to)
	}
	return env, bucket, nil
}

func Task(connect Connector) common.TaskWithCommonFlag[Flags] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		cf common.CommonFlags,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		toEnv, toBucket, err := ParseDestination(cl.Flags().To)
		if err != nil {
			return err
		}
		id := cl.Args()[ARG_ID][0]

		from, err := connect(logger, cf, cf.Env, cf.Bucket)
		if err != nil {
			return err
		}
		to, err := connect(logger, cf, toEnv, toBucket)
		if err != nil {
			return err
		}

		old, err := from.Retrieve(ctx, id, true)
		if err != nil {
			return err
		}
		engine := clone.New(from, to, clone.WithLogger(logger))
		res, err := engine.CloneGroupedDatasetResource(ctx, old)
		if err != nil {
			return err
		}
		logger.Infof("%d resources are cloned", len(engine.Migrated())+1)

		w := cl.Stdout()
		printResource(w, "Old Resource", old)
		printResource(w, "New Resource", res)
		return nil
	}
}

func printResource(w io.Writer, title string, r *forge.Resource) {
	self := ""
	if r.Metadata != nil {
		self = r.Metadata.Self
	}
	fmt.Fprintf(w, "%s:\n\tid : %s\n\turl: %s\n", title, r.ID(), self)
}
