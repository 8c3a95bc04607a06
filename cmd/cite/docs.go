package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fwojciec/cite/fs"
	"github.com/urfave/cli/v2"
)

func docsCommand() *cli.Command {
	return &cli.Command{
		Name:   "docs",
		Usage:  "List the documents in the local library",
		Action: runDocs,
	}
}

func runDocs(c *cli.Context) error {
	e, err := setup(c, c.App.ErrWriter)
	if err != nil {
		return err
	}
	lib, err := fs.Open(e.cfg.Library.Dir, e.cfg.Library.Pattern)
	if err != nil {
		return fmt.Errorf("docs: %w", err)
	}
	docs := lib.Documents()
	if len(docs) == 0 {
		fmt.Fprintf(c.App.Writer, "No documents in %s\n", lib.Root())
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "PAGES")
	for _, d := range docs {
		t.Row(d.ID, d.Title, strconv.Itoa(len(d.Pages)))
	}
	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}
