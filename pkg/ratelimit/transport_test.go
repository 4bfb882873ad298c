package ratelimit_test

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	"github.com/naveego/zenhub-tap/pkg/ratelimit"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Transport", func() {
	var (
		server   *httptest.Server
		hits     int32
		statuses []int
		bodies   []string
		retry    string
		delay    time.Duration
		client   *http.Client
		opts     ratelimit.Options
	)

	BeforeEach(func() {
		hits = 0
		bodies = nil
		statuses = nil
		retry = ""
		delay = 0
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := int(atomic.AddInt32(&hits, 1))
			b, _ := ioutil.ReadAll(r.Body)
			bodies = append(bodies, string(b))
			status := http.StatusOK
			if n <= len(statuses) {
				status = statuses[n-1]
			}
			if status == http.StatusTooManyRequests && retry != "" {
				w.Header().Set("Retry-After", retry)
			}
			time.Sleep(delay)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))
		log := logrus.New()
		log.SetOutput(ioutil.Discard)
		opts = ratelimit.Options{
			Name:            "test",
			RetryStatuses:   []int{429, 503},
			MaxTries:        4,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Log:             logrus.NewEntry(log),
		}
	})

	AfterEach(func() {
		server.Close()
	})

	newClient := func() *http.Client {
		return &http.Client{Transport: ratelimit.NewTransport(nil, opts)}
	}

	It("should pass through a successful response", func() {
		client = newClient()
		resp, err := client.Get(server.URL)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(200))
		Expect(atomic.LoadInt32(&hits)).To(BeEquivalentTo(1))
	})

	It("should retry rate limited responses until one succeeds", func() {
		statuses = []int{429, 503, 200}
		client = newClient()
		resp, err := client.Get(server.URL)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(200))
		Expect(atomic.LoadInt32(&hits)).To(BeEquivalentTo(3))
	})

	It("should replay the request body on every attempt", func() {
		statuses = []int{429, 200}
		client = newClient()
		resp, err := client.Post(server.URL, "application/json", strings.NewReader(`{"query":"q"}`))
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(200))
		Expect(bodies).To(Equal([]string{`{"query":"q"}`, `{"query":"q"}`}))
	})

	It("should give up after MaxTries with a rate limit error", func() {
		statuses = []int{429, 429, 429, 429, 429, 429}
		client = newClient()
		_, err := client.Get(server.URL)
		Expect(err).To(HaveOccurred())

		var rlErr *ratelimit.Error
		Expect(errors.As(err, &rlErr)).To(BeTrue())
		Expect(rlErr.Attempts).To(Equal(4))
		Expect(rlErr.Status).To(Equal(429))
		Expect(atomic.LoadInt32(&hits)).To(BeEquivalentTo(4))
	})

	It("should not retry other failures", func() {
		statuses = []int{500}
		client = newClient()
		resp, err := client.Get(server.URL)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(500))
		Expect(atomic.LoadInt32(&hits)).To(BeEquivalentTo(1))
	})

	It("should not count a Retry-After wait against the attempt timeout", func() {
		statuses = []int{429, 200}
		retry = "1"
		opts.AttemptTimeout = 200 * time.Millisecond
		client = newClient()

		resp, err := client.Get(server.URL)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(200))
		b, err := ioutil.ReadAll(resp.Body)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(b)).To(Equal(`{"ok":true}`))
		Expect(resp.Body.Close()).To(Succeed())
		Expect(atomic.LoadInt32(&hits)).To(BeEquivalentTo(2))
	})

	It("should fail an attempt that outlives the attempt timeout", func() {
		delay = 300 * time.Millisecond
		opts.AttemptTimeout = 50 * time.Millisecond
		client = newClient()

		_, err := client.Get(server.URL)
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})

	It("should consult IsRateLimited for statuses outside the list", func() {
		statuses = []int{403, 200}
		opts.IsRateLimited = func(resp *http.Response) bool {
			return resp.StatusCode == 403
		}
		client = newClient()
		resp, err := client.Get(server.URL)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(200))
		Expect(atomic.LoadInt32(&hits)).To(BeEquivalentTo(2))
	})
})

var _ = Describe("PerMinute", func() {
	It("should not pace when disabled", func() {
		Expect(ratelimit.PerMinute(0).Allow()).To(BeTrue())
		Expect(ratelimit.PerMinute(0).Allow()).To(BeTrue())
	})

	It("should allow a burst of one", func() {
		l := ratelimit.PerMinute(1)
		Expect(l.Allow()).To(BeTrue())
		Expect(l.Allow()).To(BeFalse())
	})
})
