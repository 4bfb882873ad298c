package singer

import (
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Writer emits singer messages, one JSON document per line. A stream's schema must be
// written before any of its records, and every record must conform to it.
type Writer struct {
	mu      sync.Mutex
	out     io.Writer
	log     *logrus.Entry
	schemas map[string]*jsonschema.Schema
	counts  map[string]int
	now     func() time.Time
}

func NewWriter(out io.Writer, log *logrus.Entry) *Writer {
	return &Writer{
		out:     out,
		log:     log.WithField("cmp", "singer"),
		schemas: map[string]*jsonschema.Schema{},
		counts:  map[string]int{},
		now:     time.Now,
	}
}

func (w *Writer) WriteSchema(stream string, schema interface{}, keyProperties []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.schemas[stream]; ok {
		return errors.Errorf("schema for stream %q already written", stream)
	}
	compiled, err := compileSchema(stream, schema)
	if err != nil {
		return errors.Wrapf(err, "schema for %q", stream)
	}
	if keyProperties == nil {
		keyProperties = []string{}
	}
	if err := w.write(SchemaMessage{Type: TypeSchema, Stream: stream, Schema: schema, KeyProperties: keyProperties}); err != nil {
		return errors.Wrapf(err, "write schema for %q", stream)
	}
	w.schemas[stream] = compiled
	return nil
}

// WriteRecord validates record against its stream's schema, and with its own
// Validate method if it implements Validator, then emits it.
func (w *Writer) WriteRecord(stream string, record interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	schema, ok := w.schemas[stream]
	if !ok {
		return errors.Errorf("record for stream %q written before its schema", stream)
	}
	if v, ok := record.(Validator); ok {
		if err := v.Validate(); err != nil {
			return errors.Wrapf(err, "invalid %s record", stream)
		}
	}
	if err := validateRecord(schema, record); err != nil {
		return errors.Wrapf(err, "%s record does not match its schema", stream)
	}

	extracted := w.now().UTC()
	if err := w.write(RecordMessage{Type: TypeRecord, Stream: stream, Record: record, TimeExtracted: &extracted}); err != nil {
		return errors.Wrapf(err, "write %s record", stream)
	}
	w.counts[stream]++
	return nil
}

func (w *Writer) WriteState(value interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return errors.Wrap(w.write(StateMessage{Type: TypeState, Value: value}), "write state")
}

func (w *Writer) write(msg interface{}) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.out.Write(b)
	return err
}

// Counts returns a copy of the number of records written per stream.
func (w *Writer) Counts() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[string]int, len(w.counts))
	for k, v := range w.counts {
		out[k] = v
	}
	return out
}

// LogMetric logs the record counter of stream in the shape singer tooling scrapes from stderr.
func (w *Writer) LogMetric(stream string) {
	w.mu.Lock()
	count := w.counts[stream]
	w.mu.Unlock()

	w.log.WithFields(logrus.Fields{
		"metric": "record_count",
		"type":   "counter",
		"value":  count,
		"stream": stream,
	}).Info("METRIC")
}
