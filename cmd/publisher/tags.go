package main

import (
	"io"
	"strings"

	"github.com/lodthe/multiarch-publisher/internal/inventory"
	"github.com/lodthe/multiarch-publisher/internal/release"
	"github.com/lodthe/multiarch-publisher/pkg/dockerhub"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

const shortDigestLength = 12

func newTagsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List published tags with their per-architecture digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(rootOpts)
			if err != nil {
				return err
			}

			cli := dockerhub.NewClient(env.cfg.Report.HubURL, dockerhub.DefaultMaxRPS, env.httpCli)
			collector := inventory.New(inventory.Config{Repositories: env.cfg.Report.Repositories}, env.logger, cli)

			entries, err := collector.Collect(cmd.Context())
			if err != nil {
				return err
			}

			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			return renderTags(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Show only the first N tags")

	return cmd
}

func renderTags(w io.Writer, entries []inventory.Entry) error {
	headers := []string{"Tag", "Repository"}
	for _, a := range release.Architectures {
		headers = append(headers, string(a))
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
				Formatting: tw.CellFormatting{AutoFormat: tw.Off},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)

	for _, e := range entries {
		row := []string{e.Tag, e.Repository}
		for _, a := range release.Architectures {
			row = append(row, shortDigest(e.Digests[a]))
		}

		err := table.Append(row)
		if err != nil {
			return err
		}
	}

	return table.Render()
}

func shortDigest(digest string) string {
	if digest == "" {
		return "-"
	}

	hex := strings.TrimPrefix(digest, "sha256:")
	if len(hex) > shortDigestLength {
		hex = hex[:shortDigestLength]
	}

	return hex
}
