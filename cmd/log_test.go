package cmd

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("logging", func() {

	table.DescribeTable("newFormatter",
		func(format string, expected interface{}) {
			formatter, err := newFormatter(format)
			Expect(err).ToNot(HaveOccurred())
			Expect(formatter).To(BeAssignableToTypeOf(expected))
		},
		table.Entry("default", "", &logrus.TextFormatter{}),
		table.Entry("text", "text", &logrus.TextFormatter{}),
		table.Entry("json", "json", &logrus.JSONFormatter{}),
		table.Entry("prefixed", "prefixed", &prefixed.TextFormatter{}),
	)

	It("should reject an unknown format", func() {
		_, err := newFormatter("xml")
		Expect(err).To(MatchError(ContainSubstring(`unrecognized log format "xml"`)))
	})

	It("should copy entries to the log file", func() {
		dir, err := ioutil.TempDir("", "zenhub-tap-log")
		Expect(err).ToNot(HaveOccurred())
		defer os.RemoveAll(dir)
		path := filepath.Join(dir, "tap.log")

		logger := logrus.New()
		logger.SetOutput(ioutil.Discard)
		configureLogFile(logger, path)
		logger.WithField("repo", "acme/widgets").Info("resolved repository")

		b, err := ioutil.ReadFile(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(b)).To(ContainSubstring("resolved repository"))
		Expect(string(b)).To(ContainSubstring("acme/widgets"))

		configureLogFile(logger, "")
		Expect(logger.Hooks).To(BeEmpty())
	})
})
