package main

import (
	"context"
	"os"
	"os/signal"
	"path"

	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/clone"
	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/common"
	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/download"
	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/info"
	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/materialize"
	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/register"
	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/token"
	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/version"
	"github.com/openbraininstitute/entitykit/pkg/utils/logger"
	"github.com/openbraininstitute/entitykit/pkg/utils/try"
	"github.com/youta-t/flarc"
)

func main() {
	name := path.Base(os.Args[0])
	logger := logger.New(os.Stderr, name)

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill,
	)
	defer cancel()

	cf := try.To(common.Flags(".")).OrFatal(logger)
	reg := try.To(register.New()).OrFatal(logger)
	cln := try.To(clone.New()).OrFatal(logger)
	mat := try.To(materialize.New()).OrFatal(logger)
	dl := try.To(download.New()).OrFatal(logger)
	inf := try.To(info.New()).OrFatal(logger)
	tok := try.To(token.New()).OrFatal(logger)
	ver := try.To(version.New()).OrFatal(logger)

	entity := try.To(
		flarc.NewCommandGroup(
			"Register, inspect and clone entities on Nexus.",
			cf,
			flarc.WithSubcommand("register", reg),
			flarc.WithSubcommand("clone", cln),
			flarc.WithSubcommand("materialize", mat),
			flarc.WithSubcommand("download", dl),
			flarc.WithSubcommand("info", inf),
			flarc.WithSubcommand("token", tok),
			flarc.WithSubcommand("version", ver),
		),
	).OrFatal(logger)

	os.Exit(flarc.Run(ctx, entity, flarc.WithHelp(true)))
}
