package cmd

import (
	"context"
	"io/ioutil"
	"os"
	"os/signal"
	"syscall"

	"github.com/naveego/zenhub-tap/pkg/git"
	"github.com/naveego/zenhub-tap/pkg/singer"
	"github.com/naveego/zenhub-tap/pkg/state"
	"github.com/naveego/zenhub-tap/pkg/tap"
	"github.com/naveego/zenhub-tap/pkg/zenhub"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const ArgSyncSummaryFile = "summary-file"

var syncCmd = addCommand(rootCmd, &cobra.Command{
	Use:   "sync",
	Short: "Extracts issues and issue events and writes them to stdout.",
	Long: `Resolves every configured repository, snapshots its ZenHub board, picks up issues
closed since the last run, and emits the event history of every issue seen.

State is only saved when every stream was emitted; a failed run leaves the
previous state in place so the next run covers the same window again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadTapConfig()
		if err != nil {
			return err
		}

		refs, err := config.RepoRefs()
		if err != nil {
			return err
		}
		startDate, err := config.StartTime()
		if err != nil {
			return err
		}

		manager, err := loadState()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		run := tap.New(tap.Options{
			Repos:     refs,
			StartDate: startDate,
			Tracker:   git.NewClient(config.GitConfig(), log),
			Estimator: zenhub.New(config.ZenHubConfig(), log),
			Sink:      singer.NewWriter(stdout, log),
			State:     manager,
			Log:       log,
		})

		summary, syncErr := run.Sync(ctx)

		if path := viper.GetString(ArgSyncSummaryFile); path != "" {
			if err = writeSummary(path, summary); err != nil {
				log.WithError(err).Error("Could not write run summary.")
			}
		}

		return syncErr
	},
}, func(cmd *cobra.Command) {
	cmd.Flags().String(ArgSyncSummaryFile, "", "Write a YAML summary of the run to this file, even if the run fails.")
})

func loadState() (*state.Manager, error) {
	input := viper.GetString(ArgGlobalState)
	output := viper.GetString(ArgGlobalStateOutput)
	if output == "" {
		output = input
	}

	manager, err := state.Load(input, log)
	if err != nil {
		return nil, err
	}
	return manager.WithOutput(output), nil
}

func writeSummary(path string, summary tap.Summary) error {
	b, err := yaml.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "marshal summary")
	}
	return errors.Wrapf(ioutil.WriteFile(path, b, 0644), "write summary to %q", path)
}
