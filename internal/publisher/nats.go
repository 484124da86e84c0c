package publisher

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"transit-topo/internal/importer"
)

// conn is the part of *nats.Conn used for publishing.
type conn interface {
	Publish(subject string, data []byte) error
}

type NATSPublisher struct {
	nc          *nats.Conn
	pub         conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// NewNATSPublisher connects to url. Subjects are rooted at prefix.
func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("transit-topo"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			slog.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			slog.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			slog.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, pub: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// RunSummary is published once an import finishes.
type RunSummary struct {
	RunID         string    `json:"runId"`
	ProducerID    string    `json:"producerId"`
	ProducerName  string    `json:"producerName"`
	DataSourceID  string    `json:"dataSourceId,omitempty"`
	Source        string    `json:"source"`
	SHA256        string    `json:"sha256"`
	RoutesCreated int       `json:"routesCreated"`
	RoutesFound   int       `json:"routesFound"`
	StopsCreated  int       `json:"stopsCreated"`
	StopsFound    int       `json:"stopsFound"`
	StopsUpdated  int       `json:"stopsUpdated"`
	LinksAdded    int       `json:"linksAdded"`
	LinksExisting int       `json:"linksExisting"`
	LinksSkipped  int       `json:"linksSkipped"`
	Error         string    `json:"error,omitempty"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// PublishSummary sends s on <prefix>.<producer>.run.
func (p *NATSPublisher) PublishSummary(s RunSummary) error {
	return p.publish(p.subject(s.ProducerID, "run"), s)
}

// ForProducer returns an importer.Observer publishing entity and link events
// of one producer's import.
func (p *NATSPublisher) ForProducer(producerID string) *Events {
	return &Events{p: p, producerID: producerID}
}

// Events publishes importer events. Publish failures are logged and counted
// but never interrupt the import.
type Events struct {
	p          *NATSPublisher
	producerID string
}

// Entity publishes on <prefix>.<producer>.<kind>.
func (e *Events) Entity(ev importer.EntityEvent) {
	e.send(ev.Kind, ev)
}

// Link publishes on <prefix>.<producer>.link.<relation>.
func (e *Events) Link(ev importer.LinkEvent) {
	e.send("link."+subjectToken(ev.Relation), ev)
}

func (e *Events) send(suffix string, v any) {
	subject := e.p.subject(e.producerID, suffix)
	if err := e.p.publish(subject, v); err != nil {
		slog.Warn("nats publish failed", "subject", subject, "error", err)
	}
}

func (p *NATSPublisher) subject(producerID, suffix string) string {
	return p.prefix + "." + subjectToken(producerID) + "." + suffix
}

func (p *NATSPublisher) publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.logSubjects {
		slog.Debug("nats publish", "subject", subject)
	}
	start := time.Now()
	err = p.pub.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
