package cmd

import (
	"github.com/naveego/zenhub-tap/pkg/state"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var stateCmd = addCommand(rootCmd, &cobra.Command{
	Use:   "state",
	Short: "Commands for inspecting tap state files.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetString(ArgGlobalState) == "" {
			return errors.Errorf("--%s is required", ArgGlobalState)
		}
		return nil
	},
})

var _ = addCommand(stateCmd, &cobra.Command{
	Use:     "show",
	Aliases: []string{"ls", "list"},
	Short:   "Lists the bookmarks in the state file.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := state.Load(viper.GetString(ArgGlobalState), log)
		if err != nil {
			return err
		}

		bookmarks := manager.Bookmarks()
		if len(bookmarks) == 0 {
			log.Info("No bookmarks saved yet.")
			return nil
		}
		return printOutputWithDefaultFormat("table", bookmarks, "stream", "key", "value")
	},
})
