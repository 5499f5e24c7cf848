package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIngestCmd(st *rootState) *cobra.Command {
	var chunkSize, overlap int
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Extract, chunk and index a PDF or PowerPoint deck",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if chunkSize <= 0 {
				chunkSize = st.app.cfg.Chunker.Size
			}
			if overlap < 0 {
				overlap = st.app.cfg.Chunker.Overlap
				if overlap >= chunkSize {
					overlap = chunkSize / 5
				}
			}
			svc, err := st.app.service(cmd.Context())
			if err != nil {
				return err
			}
			built, err := svc.BuildIndex(cmd.Context(), args[0], chunkSize, overlap)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, okf("Indexed %d chunks from %s", built.Chunks, args[0]))
			fmt.Fprintf(out, "%s %s\n", dimf("Index:"), built.Location)
			if built.Summary != "" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, headingf("Summary"))
				fmt.Fprintln(out, built.Summary)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "characters per chunk (default from config)")
	cmd.Flags().IntVar(&overlap, "overlap", -1, "characters shared by consecutive chunks (default from config)")
	return cmd
}
