package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"studyrag/internal/tui"
)

func newChatCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <index>",
		Short: "Open the interactive terminal UI on an index",
		Args:  cobra.ExactArgs(1),
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
			title := h.Meta().SourceID
			if title == "" {
				title = h.ID()
			}
			m := tui.New(ctx, svc, h, title)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
}
