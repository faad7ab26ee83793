package version

import (
	"context"
	"fmt"

	"github.com/openbraininstitute/entitykit/pkg/buildtime"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Show version of this command.",
		struct{}{},
		flarc.Args{},
		Task,
	)
}

func Task(ctx context.Context, c flarc.Commandline[struct{}], _ []any) error {
	_, err := fmt.Fprintln(c.Stdout(), buildtime.VersionString())
	return err
}
