package publisher

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-topo/internal/importer"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, message{subject, data})
	return nil
}

type countingMetrics struct {
	published, errs int
}

func (m *countingMetrics) NATSPublishedInc()            { m.published++ }
func (m *countingMetrics) NATSPublishErrInc()           { m.errs++ }
func (m *countingMetrics) PublishObserve(time.Duration) {}
func (m *countingMetrics) NATSSetConnected(bool)        {}

func newTestPublisher(c conn, m PublisherMetrics) *NATSPublisher {
	return &NATSPublisher{pub: c, prefix: "transit_topo", metrics: m}
}

func TestSubjectToken(t *testing.T) {
	cases := map[string]string{
		"Q42":             "Q42",
		"  a b ":          "a_b",
		"a.b>c*d/e":       "a_b_c_d_e",
		"":                "_",
		"bob the mapper.": "bob_the_mapper_",
	}
	for in, want := range cases {
		assert.Equal(t, want, subjectToken(in), "input %q", in)
	}
}

func TestEventsSubjects(t *testing.T) {
	fc := &fakeConn{}
	m := &countingMetrics{}
	p := newTestPublisher(fc, m)
	ev := p.ForProducer("Q7")

	var _ importer.Observer = ev
	ev.Entity(importer.EntityEvent{Kind: importer.KindStop, GTFSID: "S1", EntityID: "Q10", Outcome: importer.Created})
	ev.Link(importer.LinkEvent{Relation: importer.RelationConnectingLine, From: "S1", To: "R1", FromID: "Q10", ToID: "Q11", Outcome: importer.Added})

	require.Len(t, fc.msgs, 2)
	assert.Equal(t, "transit_topo.Q7.stop", fc.msgs[0].subject)
	assert.Equal(t, "transit_topo.Q7.link.connecting_line", fc.msgs[1].subject)

	var got importer.EntityEvent
	require.NoError(t, json.Unmarshal(fc.msgs[0].data, &got))
	assert.Equal(t, "Q10", got.EntityID)
	assert.Equal(t, importer.Created, got.Outcome)
	assert.Equal(t, 2, m.published)
}

func TestPublishSummary(t *testing.T) {
	fc := &fakeConn{}
	p := newTestPublisher(fc, nil)

	require.NoError(t, p.PublishSummary(RunSummary{RunID: "r1", ProducerID: "Q7", StopsCreated: 4}))
	require.Len(t, fc.msgs, 1)
	assert.Equal(t, "transit_topo.Q7.run", fc.msgs[0].subject)
	assert.JSONEq(t, `{"runId":"r1","producerId":"Q7","producerName":"","source":"","sha256":"",
		"routesCreated":0,"routesFound":0,"stopsCreated":4,"stopsFound":0,"stopsUpdated":0,
		"linksAdded":0,"linksExisting":0,"linksSkipped":0,"finishedAt":"0001-01-01T00:00:00Z"}`, string(fc.msgs[0].data))
}

func TestPublishFailureIsCounted(t *testing.T) {
	fc := &fakeConn{err: errors.New("nats: connection closed")}
	m := &countingMetrics{}
	p := newTestPublisher(fc, m)

	p.ForProducer("Q7").Entity(importer.EntityEvent{Kind: importer.KindRoute, Outcome: importer.Found})
	assert.Equal(t, 1, m.errs)
	assert.Error(t, p.PublishSummary(RunSummary{ProducerID: "Q7"}))
	assert.Equal(t, 2, m.errs)
}
