package cmd

import (
	"github.com/naveego/zenhub-tap/pkg/singer"
	"github.com/naveego/zenhub-tap/pkg/tap"
	"github.com/spf13/cobra"
)

type catalogStream struct {
	TapStreamID   string      `json:"tap_stream_id" yaml:"tap_stream_id"`
	Stream        string      `json:"stream" yaml:"stream"`
	KeyProperties []string    `json:"key_properties" yaml:"key_properties"`
	Schema        interface{} `json:"schema" yaml:"schema"`
}

type catalog struct {
	Streams []catalogStream `json:"streams" yaml:"streams"`
}

func buildCatalog() catalog {
	return catalog{Streams: []catalogStream{
		{
			TapStreamID:   tap.StreamIssues,
			Stream:        tap.StreamIssues,
			KeyProperties: tap.KeyProperties,
			Schema:        singer.Schema(&tap.IssueRecord{}),
		},
		{
			TapStreamID:   tap.StreamIssueEvents,
			Stream:        tap.StreamIssueEvents,
			KeyProperties: tap.KeyProperties,
			Schema:        singer.Schema(&tap.IssueEventRecord{}),
		},
	}}
}

var discoverCmd = addCommand(rootCmd, &cobra.Command{
	Use:   "discover",
	Short: "Prints the catalog of streams this tap emits.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printOutputWithDefaultFormat("json", buildCatalog())
	},
})
