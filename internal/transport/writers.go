package transport

import (
	"github.com/relabs-tech/torque_observer/internal/body"
)

// TorqueSink publishes per-limb torque vectors under the observer's prefix.
type TorqueSink struct {
	client *Client
	name   string
}

func NewTorqueSink(c *Client, name string) *TorqueSink {
	return &TorqueSink{client: c, name: name}
}

// WriteTorques publishes one limb's torque message.
func (s *TorqueSink) WriteTorques(limb string, msg body.TorqueMessage) error {
	return s.client.PublishJSON(TorqueTopic(s.name, limb), msg)
}

// DiagnosticsSink publishes the timing and comparison reports.
type DiagnosticsSink struct {
	client *Client
	name   string
}

func NewDiagnosticsSink(c *Client, name string) *DiagnosticsSink {
	return &DiagnosticsSink{client: c, name: name}
}

func (s *DiagnosticsSink) WriteTiming(r body.TimingReport) error {
	return s.client.PublishJSON(TimingTopic(s.name), r)
}

func (s *DiagnosticsSink) WriteFTReadTiming(r body.TimingReport) error {
	return s.client.PublishJSON(FTReadTimingTopic(s.name), r)
}

func (s *DiagnosticsSink) WriteComparison(r body.ComparisonReport) error {
	return s.client.PublishJSON(ComparisonTopic(s.name), r)
}

// InertialSink republishes the pre-filtered inertial stream.
type InertialSink struct {
	client *Client
	topic  string
}

func NewInertialSink(c *Client, name string) *InertialSink {
	return &InertialSink{client: c, topic: FilteredInertialTopic(name)}
}

func (s *InertialSink) WriteInertial(sample body.InertialSample) error {
	return s.client.PublishJSON(s.topic, sample)
}
