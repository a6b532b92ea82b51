package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cosmo-local-credit/doug/publish/artifact"
	"github.com/cosmo-local-credit/doug/publish/classify"
	"github.com/cosmo-local-credit/doug/publish/watch"
)

func (a *app) newLoadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Compile Solidity sources into a contracts file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runLoad(cmd)
		},
	}

	fs := cmd.Flags()
	fs.String("sources", "", "comma separated directories holding Solidity sources")
	fs.String("contracts-file", "", "file the contract definitions are written to")
	fs.String("solc", "solc", "solc binary")
	fs.StringSlice("exclude", artifact.DefaultExcluded, "contracts left out of the contracts file")
	fs.Bool("watch", false, "recompile whenever a source file changes")
	return cmd
}

func (a *app) runLoad(cmd *cobra.Command) error {
	sources := a.stringList("sources")
	if len(sources) == 0 {
		return fmt.Errorf("--sources is required")
	}
	out := strings.TrimSpace(a.v.GetString("contracts-file"))
	if out == "" {
		return fmt.Errorf("--contracts-file is required")
	}

	compiler := artifact.NewCompiler(a.v.GetString("solc"))
	compiler.Exclude = a.stringList("exclude")
	if err := a.load(cmd, compiler, sources, out); err != nil {
		return err
	}
	if !a.v.GetBool("watch") {
		return nil
	}
	return a.watch(cmd, compiler, sources, out)
}

// watch reloads until the command context is cancelled. Compile failures are
// logged and the previous contracts file is kept.
func (a *app) watch(cmd *cobra.Command, compiler *artifact.Compiler, sources []string, out string) error {
	w, err := watch.New(watch.Config{Dirs: sources})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	changes, err := w.Start()
	if err != nil {
		return err
	}
	a.logger.Info("Watching sources", "dirs", sources)

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.Errors():
			a.logger.Warn("watch sources", "error", err)
		case <-changes:
			if err := a.load(cmd, compiler, sources, out); err != nil {
				a.logger.Error("reload contracts", "error", err)
			}
		}
	}
}

func (a *app) load(cmd *cobra.Command, compiler *artifact.Compiler, sources []string, out string) error {
	set, err := compiler.Compile(cmd.Context(), sources)
	if err != nil {
		return err
	}
	if err := artifact.SaveFile(out, set, classify.Name); err != nil {
		return err
	}
	for _, name := range set.Names() {
		a.logger.Info("Loaded contract", "contract", name, "role", classify.Classify(set[name]))
	}
	a.logger.Info("Saved contracts file", "path", out, "contracts", len(set))
	return nil
}
