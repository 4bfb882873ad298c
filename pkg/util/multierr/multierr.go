package multierr

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

func New(err ...error) Collector {
	m := &multiError{}
	m.Collect(err...)
	return m
}

// Collector gathers errors so a caller can report every failure instead of the first.
type Collector interface {
	Collect(err ...error)
	Len() int
	Errors() []error
	// ToError returns nil if nothing was collected, the error itself if one was,
	// and an error listing every collected error otherwise.
	ToError() error
}

type multiError struct {
	mu     sync.Mutex
	errors []error
}

func (m *multiError) Collect(err ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range err {
		if e != nil {
			m.errors = append(m.errors, e)
		}
	}
}

func (m *multiError) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func (m *multiError) Errors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.errors...)
}

func (m *multiError) ToError() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch len(m.errors) {
	case 0:
		return nil
	case 1:
		return m.errors[0]
	}

	errStrings := []string{fmt.Sprintf("%d errors occurred:", len(m.errors))}
	for _, err := range m.errors {
		errStrings = append(errStrings, "  - "+err.Error())
	}
	return errors.New(strings.Join(errStrings, "\n"))
}
