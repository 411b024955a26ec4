package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/repocache/internal/config"
)

// InitCmd writes the annotated example configuration.
type InitCmd struct {
	Force  bool   `help:"Overwrite an existing configuration file"`
	Output string `short:"o" name:"output" help:"Directory to write repocache.yaml into (default: the --config path)"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	path := root.Config
	if i.Output != "" {
		path = filepath.Join(i.Output, "repocache.yaml")
	}
	if err := config.Init(path, i.Force); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.out(), "configuration %s initialized successfully\n", path)
	return nil
}
