package download

import (
	"context"
	"fmt"

	"github.com/cheggaaa/pb/v3"
	"github.com/labstack/gommon/log"
	"github.com/openbraininstitute/entitykit/cmd/entity/subcommands/common"
	"github.com/openbraininstitute/entitykit/pkg/download"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	kpath "github.com/openbraininstitute/entitykit/pkg/utils/path"
	"github.com/youta-t/flarc"
)

type Flags struct {
	Link      bool     `flag:"link" alias:"l" help:"Make symbolic links to files on shared filesystems, instead of copying them."`
	LocalRoot []string `flag:"local-root" metavar:"DIR" help:"Directories of shared filesystems. Files under them are not downloaded but copied. Repeatable. (default: /gpfs)"`
}

const (
	ARG_ID   = "ID"
	ARG_DEST = "DEST"
)

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Download files of distributions of a resource.",
		Flags{},
		flarc.Args{
			{
				Name: ARG_ID, Required: true,
				Help: "ID of the resource.",
			},
			{
				Name: ARG_DEST, Required: false,
				Help: "Directory where files are put. (default: current directory)",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Download files of distributions of a resource into DEST.

Files on shared filesystems (--local-root) are copied, or linked with --link,
without downloading.

Paths of files are printed as JSON, keyed by names of distributions.
`),
	)
}

const noBar pb.ProgressBarTemplate = `{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{with string . "suffix"}} {{.}}{{end}}`

func Task(
	ctx context.Context,
	logger *log.Logger,
	store forge.Store,
	cl flarc.Commandline[Flags],
	params []any,
) error {
	flags := cl.Flags()
	id := cl.Args()[ARG_ID][0]

	dest := "."
	if d := cl.Args()[ARG_DEST]; 0 < len(d) {
		dest = d[0]
	}
	dest, err := kpath.Resolve(dest)
	if err != nil {
		return fmt.Errorf("path resolving error for '%s': %w", dest, err)
	}

	bar := noBar.New(-1)
	bar.SetWriter(cl.Stderr())
	bar.Set("prefix", fmt.Sprintf("Downloading to %s:", ellipsis(dest, 60)))
	bar.Start()

	options := []download.Option{
		download.WithLogger(logger),
		download.WithProgress(func(name string, _ string) {
			bar.Set("suffix", ellipsis(name, 40))
			bar.Increment()
		}),
	}
	if flags.Link {
		options = append(options, download.Link())
	}
	if 0 < len(flags.LocalRoot) {
		options = append(options, download.WithLocalRoots(flags.LocalRoot...))
	}

	paths, err := download.Download(ctx, store, id, dest, options...)
	if err != nil {
		bar.Set("suffix", "failed.")
		bar.Finish()
		return err
	}
	bar.Set("suffix", "done.")
	bar.Finish()

	return common.WriteJSON(cl.Stdout(), paths)
}

func ellipsis(s string, length int) string {
	if len(s) <= length {
		return s
	}

	l := len(s)
	return "[...]" + s[l-length+5:]
}
