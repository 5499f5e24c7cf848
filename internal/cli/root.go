// Package cli implements the studyrag command line.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"studyrag/internal/config"
	"studyrag/internal/logging"
	"studyrag/internal/service"
)

// rootState is shared by every command of one invocation.
type rootState struct {
	cfgPath  string
	logLevel string
	storeDir string
	app      *app
}

func newRootCmd(st *rootState) *cobra.Command {
	root := &cobra.Command{
		Use:           "studyrag",
		Short:         "studyrag: ask questions about your lecture slides and PDFs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg  *config.AppConfig
				used string
				err  error
			)
			if st.cfgPath == "" {
				cfg, used, err = config.LoadDefault()
			} else {
				cfg, err = config.Load(st.cfgPath)
				used = st.cfgPath
			}
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if st.logLevel != "" {
				cfg.Log.Level = st.logLevel
			}
			if st.storeDir != "" {
				cfg.VectorStore.Dir = st.storeDir
			}
			log, err := logging.Init(cfg.Log)
			if err != nil {
				return err
			}
			log.Debug().Str("config", used).Msg("configuration loaded")

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			st.app = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if st.app == nil {
				return nil
			}
			return st.app.Close()
		},
	}
	root.PersistentFlags().StringVarP(&st.cfgPath, "config", "c", "", "config file (default ./config.yaml or ~/.config/studyrag/config.yaml)")
	root.PersistentFlags().StringVar(&st.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&st.storeDir, "store-dir", "", "override the directory holding persisted indexes")

	root.AddCommand(
		newIngestCmd(st),
		newAskCmd(st),
		newNotesCmd(st),
		newSearchCmd(st),
		newInspectCmd(st),
		newListCmd(st),
		newChatCmd(st),
		newDropCmd(st),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	root := newRootCmd(&rootState{})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorf("%s", service.Readable(err)))
		_ = logging.Close()
		os.Exit(1)
	}
}

// resolveIndex accepts either a path to an index directory or the name of
// one inside the store directory.
func (st *rootState) resolveIndex(arg string) string {
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		return arg
	}
	return filepath.Join(st.app.cfg.VectorStore.Dir, arg)
}
