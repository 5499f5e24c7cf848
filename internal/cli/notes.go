package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newNotesCmd(st *rootState) *cobra.Command {
	var translate bool
	cmd := &cobra.Command{
		Use:   "notes <index> <topic>",
		Short: "Write study notes on a topic from every relevant chunk",
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
			notes, err := svc.Notes(ctx, h, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			text := notes.Text
			if translate {
				if text, err = svc.Translate(ctx, text); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, text)
			if len(notes.Scored) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, dimf("%d passages above similarity %.2f", len(notes.Scored), st.app.cfg.Retrieval.Threshold))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&translate, "translate", "t", false, "translate the notes into the configured language")
	return cmd
}
