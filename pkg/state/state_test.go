package state_test

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/naveego/zenhub-tap/pkg/state"
	"github.com/sirupsen/logrus"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type recordingSink struct {
	values []interface{}
}

func (r *recordingSink) WriteState(value interface{}) error {
	r.values = append(r.values, value)
	return nil
}

var _ = Describe("Manager", func() {
	var (
		dir string
		log *logrus.Entry
	)

	BeforeEach(func() {
		var err error
		dir, err = ioutil.TempDir("", "zenhub-tap-state")
		Expect(err).ToNot(HaveOccurred())
		logger := logrus.New()
		logger.Out = ioutil.Discard
		log = logrus.NewEntry(logger)
	})

	AfterEach(func() {
		_ = os.RemoveAll(dir)
	})

	Describe("Load", func() {
		It("should start empty when the file does not exist", func() {
			sut, err := state.Load(filepath.Join(dir, "missing.json"), log)
			Expect(err).ToNot(HaveOccurred())
			Expect(sut.Bookmarks()).To(BeEmpty())
		})

		It("should start empty when the file is empty", func() {
			path := filepath.Join(dir, "state.json")
			Expect(ioutil.WriteFile(path, nil, 0600)).To(Succeed())

			sut, err := state.Load(path, log)
			Expect(err).ToNot(HaveOccurred())
			Expect(sut.Bookmarks()).To(BeEmpty())
		})

		It("should read bookmarks", func() {
			path := filepath.Join(dir, "state.json")
			Expect(ioutil.WriteFile(path, []byte(`{"bookmarks":{"issues":{"acme/widgets.last_updated":"2023-01-01T00:00:00Z"}}}`), 0600)).To(Succeed())

			sut, err := state.Load(path, log)
			Expect(err).ToNot(HaveOccurred())

			w, err := sut.GetWatermark("issues", "acme/widgets.last_updated")
			Expect(err).ToNot(HaveOccurred())
			Expect(*w).To(Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)))
		})

		It("should fail on malformed json", func() {
			path := filepath.Join(dir, "state.json")
			Expect(ioutil.WriteFile(path, []byte(`{"bookmarks":`), 0600)).To(Succeed())

			_, err := state.Load(path, log)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("watermarks", func() {
		var sut *state.Manager

		BeforeEach(func() {
			sut = state.FromDocument(state.Document{}, log)
		})

		It("should return nil when no watermark exists", func() {
			w, err := sut.GetWatermark("issues", "acme/widgets.last_updated")
			Expect(err).ToNot(HaveOccurred())
			Expect(w).To(BeNil())
		})

		It("should reject unparseable watermarks", func() {
			sut = state.FromDocument(state.Document{Bookmarks: map[string]map[string]string{
				"issues": {"k": "yesterday"},
			}}, log)
			_, err := sut.GetWatermark("issues", "k")
			Expect(err).To(HaveOccurred())
		})

		It("should store watermarks at second precision in UTC", func() {
			at := time.Date(2023, 3, 4, 7, 8, 9, 500, time.FixedZone("x", 3600))
			Expect(sut.SetWatermark("issues", "k", at)).To(Equal(time.Date(2023, 3, 4, 6, 8, 9, 0, time.UTC)))
			Expect(sut.Document().Bookmarks["issues"]["k"]).To(Equal("2023-03-04T06:08:09Z"))
		})

		It("should never move a watermark backwards", func() {
			later := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
			earlier := later.Add(-48 * time.Hour)

			sut.SetWatermark("issues", "k", later)
			Expect(sut.SetWatermark("issues", "k", earlier)).To(Equal(later))

			w, err := sut.GetWatermark("issues", "k")
			Expect(err).ToNot(HaveOccurred())
			Expect(*w).To(Equal(later))
		})

		It("should list bookmarks in order", func() {
			sut.SetWatermark("issues", "b/b.last_updated", time.Unix(0, 0))
			sut.SetWatermark("issues", "a/a.last_updated", time.Unix(0, 0))
			Expect(sut.Bookmarks()).To(Equal([]state.Bookmark{
				{Stream: "issues", Key: "a/a.last_updated", Value: "1970-01-01T00:00:00Z"},
				{Stream: "issues", Key: "b/b.last_updated", Value: "1970-01-01T00:00:00Z"},
			}))
		})
	})

	Describe("Persist", func() {
		var (
			path string
			sink *recordingSink
		)

		BeforeEach(func() {
			path = filepath.Join(dir, "nested", "state.json")
			sink = &recordingSink{}
		})

		It("should write the file and emit a state message", func() {
			sut, err := state.Load(path, log)
			Expect(err).ToNot(HaveOccurred())
			sut.SetWatermark("issues", "acme/widgets.last_updated", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))

			Expect(sut.Persist(sink)).To(Succeed())

			b, err := ioutil.ReadFile(path)
			Expect(err).ToNot(HaveOccurred())
			var doc state.Document
			Expect(json.Unmarshal(b, &doc)).To(Succeed())
			Expect(doc.Bookmarks["issues"]).To(HaveKeyWithValue("acme/widgets.last_updated", "2023-01-01T00:00:00Z"))

			Expect(sink.values).To(HaveLen(1))
			Expect(sink.values[0]).To(Equal(doc))
		})

		It("should write to the output path when one is set", func() {
			out := filepath.Join(dir, "out.json")
			sut, err := state.Load(path, log)
			Expect(err).ToNot(HaveOccurred())

			Expect(sut.WithOutput(out).Persist(sink)).To(Succeed())

			Expect(out).To(BeAnExistingFile())
			Expect(path).ToNot(BeAnExistingFile())
		})

		It("should only persist once", func() {
			sut := state.FromDocument(state.Document{}, log)
			Expect(sut.Persist(sink)).To(Succeed())
			Expect(sut.Persist(sink)).ToNot(Succeed())
			Expect(sink.values).To(HaveLen(1))
			Expect(sut.Persisted()).To(BeTrue())
		})

		It("should leave no temp files behind", func() {
			sut, err := state.Load(path, log)
			Expect(err).ToNot(HaveOccurred())
			Expect(sut.Persist(sink)).To(Succeed())

			matches, err := filepath.Glob(filepath.Join(dir, "nested", "*.tmp"))
			Expect(err).ToNot(HaveOccurred())
			Expect(matches).To(BeEmpty())
		})

		It("should remove its lock file once the state is saved", func() {
			sut, err := state.Load(path, log)
			Expect(err).ToNot(HaveOccurred())
			Expect(sut.Persist(sink)).To(Succeed())

			Expect(path + ".lock").ToNot(BeAnExistingFile())
			entries, err := ioutil.ReadDir(filepath.Dir(path))
			Expect(err).ToNot(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Name()).To(Equal("state.json"))
		})

		It("should refuse to write while another process holds the lock", func() {
			Expect(os.MkdirAll(filepath.Dir(path), 0700)).To(Succeed())
			other := flock.New(path + ".lock")
			locked, err := other.TryLock()
			Expect(err).ToNot(HaveOccurred())
			Expect(locked).To(BeTrue())
			defer other.Unlock()

			sut, err := state.Load(path, log)
			Expect(err).ToNot(HaveOccurred())
			Expect(sut.Persist(sink)).To(MatchError(ContainSubstring("locked")))
			Expect(sink.values).To(BeEmpty())
		})
	})
})
