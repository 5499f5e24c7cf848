package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(st *rootState) *cobra.Command {
	var translate bool
	cmd := &cobra.Command{
		Use:   "ask <index> <question>",
		Short: "Answer a question from the closest chunks of an index",
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
			ans, err := svc.Ask(ctx, h, strings.Join(args[1:], " "), nil)
			if err != nil {
				return err
			}
			text := ans.Text
			if translate {
				if text, err = svc.Translate(ctx, text); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, text)
			printSources(out, ans.Chunks)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&translate, "translate", "t", false, "translate the answer into the configured language")
	return cmd
}
