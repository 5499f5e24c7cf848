package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"studyrag/internal/vectorstore"
)

func newDropCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <index>",
		Short: "Delete a persisted index and its backend resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			location := st.resolveIndex(args[0])
			if err := vectorstore.Delete(cmd.Context(), location, st.app.loaders...); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okf("Dropped %s", location))
			return nil
		},
	}
}
