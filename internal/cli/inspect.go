package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"studyrag/internal/service"
	"studyrag/internal/vectorstore"
)

func newInspectCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <index>",
		Short: "Show what a persisted index contains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			location := st.resolveIndex(args[0])
			h, err := vectorstore.Open(cmd.Context(), location, st.app.loaders...)
			if err != nil {
				return err
			}
			s := service.StatusOf(h, location)
			out := cmd.OutOrStdout()
			row := func(k string, v any) { fmt.Fprintf(out, "%s %v\n", dimf("%-10s", k+":"), v) }
			row("id", s.ID)
			row("location", s.Location)
			row("source", s.SourceID)
			row("backend", s.Backend)
			row("metric", s.Metric)
			row("dimension", s.Dimension)
			row("chunks", s.Chunks)
			row("embedder", s.Embedder)
			return nil
		},
	}
}
