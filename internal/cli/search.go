package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd(st *rootState) *cobra.Command {
	var (
		mode      string
		k         int
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "search <index> <query>",
		Short: "Show the chunks retrieved for a query",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := st.app.service(ctx)
			if err != nil {
				return err
			}
			h, err := svc.Open(ctx, st.resolveIndex(args[0]))
			if err != nil {
				return err
			}
			query := strings.Join(args[1:], " ")
			out := cmd.OutOrStdout()

			switch mode {
			case "precise":
				chunks, err := svc.Precise(ctx, h, query, k)
				if err != nil {
					return err
				}
				if len(chunks) == 0 {
					fmt.Fprintln(out, dimf("no matches"))
					return nil
				}
				for i, c := range chunks {
					fmt.Fprintln(out, headingf("%2d. %s", i+1, c.ID()))
					fmt.Fprintln(out, indent(c.Text))
				}
			case "comprehensive":
				scored, err := svc.Comprehensive(ctx, h, query, threshold)
				if err != nil {
					return err
				}
				if len(scored) == 0 {
					fmt.Fprintln(out, dimf("no matches"))
					return nil
				}
				printScored(out, scored)
			default:
				return fmt.Errorf("unknown search mode %q (want precise or comprehensive)", mode)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "precise", "precise (top k) or comprehensive (above threshold)")
	cmd.Flags().IntVar(&k, "k", 0, "number of chunks in precise mode (default from config)")
	cmd.Flags().Float64Var(&threshold, "threshold", -1, "minimum similarity in comprehensive mode (default from config)")
	return cmd
}
