package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"studyrag/internal/vectorstore"
)

func newListCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the persisted indexes in the store directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := st.app.cfg.VectorStore.Dir
			entries, err := os.ReadDir(dir)
			if errors.Is(err, os.ErrNotExist) {
				entries, err = nil, nil
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			n := 0
			for _, e := range entries {
				if !e.IsDir() {
					continue
				}
				m, err := vectorstore.ReadManifest(filepath.Join(dir, e.Name()))
				if err != nil {
					st.app.log.Debug().Err(err).Str("dir", e.Name()).Msg("skipping directory without a valid manifest")
					continue
				}
				n++
				fmt.Fprintf(out, "%s  %s\n", headingf("%s", e.Name()),
					dimf("%s/%s  %d chunks  %s", m.Backend, m.Metric, m.Count, m.CreatedAt.Format("2006-01-02 15:04")))
			}
			if n == 0 {
				fmt.Fprintln(out, dimf("no indexes in %s", dir))
			}
			return nil
		},
	}
}
