package cmd

import (
	"bufio"
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/naveego/zenhub-tap/pkg/zenhub"
	"github.com/naveego/zenhub-tap/test"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type singerMessage struct {
	Type   string                 `json:"type"`
	Stream string                 `json:"stream"`
	Record map[string]interface{} `json:"record"`
	Value  map[string]interface{} `json:"value"`
}

func execute(args ...string) error {
	for _, c := range []*cobra.Command{rootCmd, syncCmd, discoverCmd, stateCmd} {
		reset := func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
	}
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func messages(buf *bytes.Buffer) []singerMessage {
	var out []singerMessage
	scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var m singerMessage
		Expect(json.Unmarshal(scanner.Bytes(), &m)).To(Succeed())
		out = append(out, m)
	}
	return out
}

func ofType(msgs []singerMessage, kind, stream string) []singerMessage {
	var out []singerMessage
	for _, m := range msgs {
		if m.Type == kind && m.Stream == stream {
			out = append(out, m)
		}
	}
	return out
}

var _ = Describe("zenhub-tap", func() {
	var (
		github     *test.GitHub
		zen        *test.ZenHub
		dir        string
		configPath string
		statePath  string
		buf        *bytes.Buffer
		widgets    = test.Repo{NodeID: "MDEwOlJlcG9zaXRvcnkxMDE=", DatabaseID: 101, Owner: "acme", Name: "widgets"}
		closedAt   = time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	)

	writeConfig := func(repos ...string) {
		b, err := json.Marshal(map[string]interface{}{
			"github_token":               "gh-token",
			"zenhub_token":               "zh-token",
			"repos":                      repos,
			"github_url":                 github.URL(),
			"zenhub_url":                 zen.URL,
			"zenhub_requests_per_minute": -1,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(ioutil.WriteFile(configPath, b, 0600)).To(Succeed())
	}

	BeforeEach(func() {
		os.Unsetenv("GITHUB_TOKEN")
		os.Unsetenv("ZENHUB_TOKEN")

		github = test.NewGitHub()
		zen = test.NewZenHub()

		var err error
		dir, err = ioutil.TempDir("", "zenhub-tap-cmd")
		Expect(err).ToNot(HaveOccurred())
		configPath = filepath.Join(dir, "config.json")
		statePath = filepath.Join(dir, "state.json")

		buf = new(bytes.Buffer)
		stdout = buf

		github.AddRepo(widgets, test.ClosedIssue{Number: 7, UpdatedAt: closedAt, ClosedAt: closedAt})
		zen.SetBoard(101, zenhub.Board{Pipelines: []zenhub.Pipeline{{
			Name:   "In Progress",
			Issues: []zenhub.BoardIssue{{IssueNumber: 42, Estimate: &zenhub.Estimate{Value: 3}}},
		}}})
		zen.SetIssue(101, 7, zenhub.IssueData{Pipeline: &zenhub.PipelineRef{Name: "Done"}})
		zen.SetEvents(101, 42, zenhub.IssueEvent{
			UserID:     9,
			Type:       "transferIssue",
			CreatedAt:  time.Date(2023, 1, 5, 10, 0, 0, 0, time.UTC),
			ToPipeline: &zenhub.PipelineRef{Name: "In Progress"},
		})
		writeConfig("acme/widgets")
	})

	AfterEach(func() {
		github.Close()
		zen.Close()
		_ = os.RemoveAll(dir)
	})

	Describe("sync", func() {
		It("should emit both streams and save state", func() {
			Expect(execute("sync", "--config", configPath, "--state", statePath)).To(Succeed())

			msgs := messages(buf)
			Expect(msgs[0].Type).To(Equal("SCHEMA"))
			Expect(msgs[1].Type).To(Equal("SCHEMA"))
			Expect(msgs[len(msgs)-1].Type).To(Equal("STATE"))

			issueMsgs := ofType(msgs, "RECORD", "issues")
			Expect(issueMsgs).To(HaveLen(2))
			Expect(issueMsgs[0].Record).To(HaveKeyWithValue("id", widgets.NodeID+"-42"))
			Expect(issueMsgs[0].Record).To(HaveKeyWithValue("pipeline_name", "In Progress"))
			Expect(issueMsgs[0].Record).To(HaveKeyWithValue("estimate_value", 3.0))
			Expect(issueMsgs[1].Record).To(HaveKeyWithValue("id", widgets.NodeID+"-7"))
			Expect(issueMsgs[1].Record).To(HaveKeyWithValue("pipeline_name", "Done"))

			eventMsgs := ofType(msgs, "RECORD", "issue_events")
			Expect(eventMsgs).To(HaveLen(1))
			Expect(eventMsgs[0].Record).To(HaveKeyWithValue("id", widgets.NodeID+"-42-2023-01-05T10:00:00Z"))

			Expect(github.Tokens()).To(ContainElement("Bearer gh-token"))
			Expect(zen.Tokens()).To(ConsistOf("zh-token", "zh-token", "zh-token", "zh-token"))
			Expect(zen.Paths()).To(Equal([]string{
				"/p1/repositories/101/board",
				"/p1/repositories/101/issues/7",
				"/p1/repositories/101/issues/42/events",
				"/p1/repositories/101/issues/7/events",
			}))

			b, err := ioutil.ReadFile(statePath)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(b)).To(ContainSubstring("acme/widgets.last_updated"))
		})

		It("should only search after the saved watermark on the next run", func() {
			Expect(execute("sync", "--config", configPath, "--state", statePath)).To(Succeed())
			buf.Reset()

			Expect(execute("sync", "--config", configPath, "--state", statePath)).To(Succeed())

			queries := github.SearchQueries()
			Expect(queries).To(HaveLen(2))
			Expect(queries[0]).ToNot(ContainSubstring("updated:"))
			Expect(queries[1]).To(ContainSubstring("updated:>"))

			Expect(ofType(messages(buf), "RECORD", "issues")).To(HaveLen(1))
		})

		It("should resume a backfill that GitHub cut short instead of skipping past it", func() {
			later := closedAt.Add(time.Hour)
			github.AddRepo(widgets,
				test.ClosedIssue{Number: 7, UpdatedAt: closedAt, ClosedAt: closedAt},
				test.ClosedIssue{Number: 8, UpdatedAt: later, ClosedAt: later},
			)
			github.LimitResults(1)

			Expect(execute("sync", "--config", configPath, "--state", statePath)).To(Succeed())

			issueMsgs := ofType(messages(buf), "RECORD", "issues")
			Expect(issueMsgs).To(HaveLen(2))
			Expect(issueMsgs[1].Record).To(HaveKeyWithValue("id", widgets.NodeID+"-7"))

			b, err := ioutil.ReadFile(statePath)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(b)).To(ContainSubstring(`"acme/widgets.last_updated": "2023-01-31T23:59:59Z"`))
		})

		It("should write state to --state-output and a summary file", func() {
			out := filepath.Join(dir, "next-state.json")
			summaryPath := filepath.Join(dir, "summary.yaml")

			Expect(execute("sync", "--config", configPath, "--state", statePath, "--state-output", out, "--summary-file", summaryPath)).To(Succeed())

			Expect(out).To(BeAnExistingFile())
			Expect(statePath).ToNot(BeAnExistingFile())

			b, err := ioutil.ReadFile(summaryPath)
			Expect(err).ToNot(HaveOccurred())
			var summary map[string]interface{}
			Expect(yaml.Unmarshal(b, &summary)).To(Succeed())
			Expect(summary).To(HaveKeyWithValue("phase", "DONE"))
		})

		It("should fail without saving state when a repository cannot be resolved", func() {
			writeConfig("acme/widgets", "acme/missing")

			err := execute("sync", "--config", configPath, "--state", statePath)
			Expect(err).To(MatchError(ContainSubstring("acme/missing")))

			Expect(statePath).ToNot(BeAnExistingFile())
			Expect(ofType(messages(buf), "RECORD", "issues")).To(BeEmpty())
			Expect(ofType(messages(buf), "STATE", "")).To(BeEmpty())
		})

		It("should fail without saving state when zenhub has no data for a closed issue", func() {
			github.AddRepo(widgets, test.ClosedIssue{Number: 8, UpdatedAt: closedAt, ClosedAt: closedAt})

			err := execute("sync", "--config", configPath, "--state", statePath)
			Expect(err).To(MatchError(ContainSubstring("not found")))
			Expect(statePath).ToNot(BeAnExistingFile())
		})

		It("should require a config file", func() {
			Expect(execute("sync")).To(MatchError(ContainSubstring("--config")))
		})

		It("should reject an invalid config", func() {
			Expect(ioutil.WriteFile(configPath, []byte(`{"repos":["widgets"]}`), 0600)).To(Succeed())
			err := execute("sync", "--config", configPath)
			Expect(err).To(MatchError(ContainSubstring("github_token")))
			Expect(err).To(MatchError(ContainSubstring("owner/name")))
		})
	})

	Describe("discover", func() {
		It("should print both streams", func() {
			Expect(execute("discover")).To(Succeed())

			var c struct {
				Streams []struct {
					Stream        string                 `json:"stream"`
					KeyProperties []string               `json:"key_properties"`
					Schema        map[string]interface{} `json:"schema"`
				} `json:"streams"`
			}
			Expect(json.Unmarshal(buf.Bytes(), &c)).To(Succeed())
			Expect(c.Streams).To(HaveLen(2))
			Expect(c.Streams[0].Stream).To(Equal("issues"))
			Expect(c.Streams[1].Stream).To(Equal("issue_events"))
			Expect(c.Streams[0].KeyProperties).To(Equal([]string{"id"}))
			Expect(c.Streams[1].Schema).To(HaveKeyWithValue("properties", HaveKey("created_at")))
		})
	})

	Describe("state show", func() {
		BeforeEach(func() {
			Expect(ioutil.WriteFile(statePath, []byte(`{"bookmarks":{"issues":{"acme/widgets.last_updated":"2023-01-01T00:00:00Z"}}}`), 0600)).To(Succeed())
		})

		It("should render bookmarks as a table", func() {
			Expect(execute("state", "show", "--state", statePath)).To(Succeed())
			Expect(buf.String()).To(ContainSubstring("acme/widgets.last_updated"))
			Expect(buf.String()).To(ContainSubstring("2023-01-01T00:00:00Z"))
		})

		It("should render bookmarks as json", func() {
			Expect(execute("state", "show", "--state", statePath, "-o", "json")).To(Succeed())

			var bookmarks []map[string]string
			Expect(json.Unmarshal(buf.Bytes(), &bookmarks)).To(Succeed())
			Expect(bookmarks).To(ConsistOf(map[string]string{
				"stream": "issues",
				"key":    "acme/widgets.last_updated",
				"value":  "2023-01-01T00:00:00Z",
			}))
		})

		It("should require --state", func() {
			Expect(execute("state", "show")).To(MatchError(ContainSubstring("--state")))
		})
	})
})
