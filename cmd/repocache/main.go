package main

import (
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/repocache/cmd/repocache/commands"
	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
	"git.home.luguber.info/inful/repocache/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run parses args, executes the selected command and maps its error to an
// exit code.
func run(args []string) int {
	cli := &commands.CLI{}
	g := commands.NewGlobal()
	parser, err := kong.New(cli,
		kong.Name("repocache"),
		kong.Description("Shared, content-addressed cache of pinned git checkouts."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(g),
	)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		return 1
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		parser.Errorf("%s", err)
		return 2
	}
	err = kctx.Run(cli)
	return ferrors.NewCLIErrorAdapter(cli.Verbose, g.Logger).Report(os.Stderr, err)
}
