// Package dispatcher implements the pipeline scheduler: a worker pool
// that decodes incoming packets and fans each decoded message out to
// correlation, analysis, and the event writer.
package dispatcher

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/protei/monitoring/pkg/analysis"
	"github.com/protei/monitoring/pkg/correlation"
	"github.com/protei/monitoring/pkg/decoder"
	"github.com/protei/monitoring/pkg/events"
	"github.com/protei/monitoring/pkg/health"
	"github.com/protei/monitoring/pkg/stats"
)

// Packet is the opaque unit handed in by the external Source collaborator.
type Packet struct {
	Payload        []byte
	SourceIP       string
	DestIP         string
	SourcePort     uint16
	DestPort       uint16
	TransportProto string
	CaptureTime    time.Time
	InterfaceName  string
}

// eventsFanoutSize bounds the fan-out channel to the event writer; on
// overflow the message is dropped and counted, never blocked on.
const eventsFanoutSize = 1000

// Dispatcher owns the worker pool and the bounded channels connecting
// decode to the downstream collaborators.
type Dispatcher struct {
	registry    *decoder.DecoderRegistry
	correlation *correlation.Engine
	analysis    *analysis.Engine
	stats       *stats.Statistics
	eventsOut   *events.Writer
	probe       *health.Probe
	logger      zerolog.Logger

	input    chan Packet
	eventsCh chan *decoder.Message

	droppedNoDecoder int64
	droppedDecode    int64
	eventsDropped    int64

	workerWg sync.WaitGroup
	eventsWg sync.WaitGroup
}

// Config controls buffer sizing and worker count.
type Config struct {
	Workers         int
	InputBufferSize int
}

// New builds a Dispatcher. The correlation engine's Config.OnSessionClosed
// should already be wired (e.g. to a CDR-writing handler) by the
// composition root before sessions start closing.
func New(cfg Config, registry *decoder.DecoderRegistry, corr *correlation.Engine, an *analysis.Engine, st *stats.Statistics, ev *events.Writer, probe *health.Probe, logger zerolog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.InputBufferSize <= 0 {
		cfg.InputBufferSize = 10000
	}
	return &Dispatcher{
		registry:    registry,
		correlation: corr,
		analysis:    an,
		stats:       st,
		eventsOut:   ev,
		probe:       probe,
		logger:      logger,
		input:       make(chan Packet, cfg.InputBufferSize),
		eventsCh:    make(chan *decoder.Message, eventsFanoutSize),
	}
}

// Start launches the worker pool and the event fan-out drain.
func (d *Dispatcher) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	d.eventsWg.Add(1)
	go d.drainEvents()

	d.workerWg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
}

// Submit hands a packet to the worker pool. It blocks when the input
// channel is full, applying backpressure to the caller.
func (d *Dispatcher) Submit(pkt Packet) {
	d.input <- pkt
}

// Shutdown stops accepting new packets, drains in-flight work, force-
// completes every active session, and flushes the writers.
func (d *Dispatcher) Shutdown() {
	close(d.input)
	d.workerWg.Wait()

	close(d.eventsCh)
	d.eventsWg.Wait()

	d.correlation.ForceCompleteAll()
	d.correlation.Stop()
	d.eventsOut.Close()
}

func (d *Dispatcher) worker() {
	defer d.workerWg.Done()
	for pkt := range d.input {
		d.process(pkt)
	}
}

func (d *Dispatcher) process(pkt Packet) {
	meta := &decoder.Metadata{
		CaptureTime:    pkt.CaptureTime,
		SourceIP:       pkt.SourceIP,
		DestIP:         pkt.DestIP,
		SourcePort:     pkt.SourcePort,
		DestPort:       pkt.DestPort,
		TransportProto: pkt.TransportProto,
		InterfaceName:  pkt.InterfaceName,
	}

	msg, err := d.registry.Decode(pkt.Payload, meta)
	if err != nil {
		if errors.Is(err, decoder.ErrNoDecoderFound) {
			atomic.AddInt64(&d.droppedNoDecoder, 1)
			return
		}
		atomic.AddInt64(&d.droppedDecode, 1)
		d.probe.RecordError(err)
		d.logger.Debug().Err(err).Msg("dispatcher: decode failed")
		return
	}

	d.probe.RecordMessage()

	session := d.correlation.Observe(msg)
	latency := latencySincePrevious(session, msg)
	if latency > 0 && msg.Details != nil {
		// Stamped before fan-out so the analysis rules and the event log
		// see the same pairing-derived latency the statistics record.
		msg.Details["latency_ms"] = float64(latency.Microseconds()) / 1000.0
	}
	d.stats.Observe(msg, latency)
	d.analysis.Analyze(msg)
	d.enqueueEvent(msg)
}

// latencySincePrevious estimates a response's procedure latency as the
// gap to the immediately preceding message in its session, mirroring the
// pairing the correlation engine already does for session-level
// AvgLatencyMs rather than tracking a second pending-
// request map.
func latencySincePrevious(session *correlation.Session, msg *decoder.Message) time.Duration {
	if msg.Direction != decoder.DirectionResponse {
		return 0
	}
	messages, _, _, _ := session.Snapshot()
	if len(messages) < 2 {
		return 0
	}
	prev := messages[len(messages)-2]
	if gap := msg.Timestamp.Sub(prev.Timestamp); gap > 0 {
		return gap
	}
	return 0
}

func (d *Dispatcher) enqueueEvent(msg *decoder.Message) {
	select {
	case d.eventsCh <- msg:
	default:
		atomic.AddInt64(&d.eventsDropped, 1)
	}
}

func (d *Dispatcher) drainEvents() {
	defer d.eventsWg.Done()
	for msg := range d.eventsCh {
		d.eventsOut.WriteMessage(msg)
	}
}

// DroppedNoDecoder returns the count of packets silently dropped because
// no decoder claimed them.
func (d *Dispatcher) DroppedNoDecoder() int64 { return atomic.LoadInt64(&d.droppedNoDecoder) }

// DroppedDecodeError returns the count of packets dropped due to a
// decode error.
func (d *Dispatcher) DroppedDecodeError() int64 { return atomic.LoadInt64(&d.droppedDecode) }

// EventsDropped returns the count of messages dropped from the bounded
// event fan-out channel.
func (d *Dispatcher) EventsDropped() int64 { return atomic.LoadInt64(&d.eventsDropped) }
