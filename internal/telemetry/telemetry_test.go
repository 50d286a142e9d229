package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"sous_vide/internal/logger"
	"sous_vide/internal/models"
)

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool                     { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	msgs         []published
	token        *fakeToken
	disconnected bool
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.msgs = append(f.msgs, published{topic, qos, retained, payload.([]byte)})
	return f.token
}

func (f *fakePublisher) Disconnect(uint) { f.disconnected = true }

var sample = models.DeviceStatus{
	CurrentTemp: "134.9",
	SetTemp:     "135.5",
	Unit:        "f",
	State:       "running",
	LinkOpen:    true,
	UpdatedAt:   time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
}

func TestMQTTSink_PublishesRetainedJSON(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{complete: true}}
	s := newMQTTSink(pub, "", nil)

	if err := s.PublishStatus(context.Background(), sample); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.topic != defaultMQTTTopic || !msg.retained || msg.qos != 1 {
		t.Fatalf("unexpected message meta: %+v", msg)
	}
	var got models.DeviceStatus
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.CurrentTemp != "134.9" || got.State != "running" {
		t.Fatalf("payload=%+v", got)
	}

	_ = s.Close()
	if !pub.disconnected {
		t.Fatalf("Close did not disconnect")
	}
}

func TestMQTTSink_Errors(t *testing.T) {
	cases := []struct {
		name  string
		token *fakeToken
	}{
		{"timeout", &fakeToken{complete: false}},
		{"broker_error", &fakeToken{complete: true, err: errors.New("not authorized")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newMQTTSink(&fakePublisher{token: tc.token}, "kitchen/status", nil)
			if err := s.PublishStatus(context.Background(), sample); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestStatusPoint(t *testing.T) {
	p := statusPoint("anova", sample)
	if p.Name() != statusMeasurement {
		t.Fatalf("measurement=%q", p.Name())
	}

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["current_temp"] != 134.9 || fields["set_temp"] != 135.5 {
		t.Fatalf("fields=%v", fields)
	}
	if fields["state"] != "running" || fields["link_open"] != true {
		t.Fatalf("fields=%v", fields)
	}

	tags := map[string]string{}
	for _, tg := range p.TagList() {
		tags[tg.Key] = tg.Value
	}
	if tags["device"] != "anova" || tags["unit"] != "f" {
		t.Fatalf("tags=%v", tags)
	}
}

func TestStatusPoint_SkipsUnknownTemperatures(t *testing.T) {
	p := statusPoint("anova", models.UnknownStatus(time.Now()))
	for _, f := range p.FieldList() {
		if f.Key == "current_temp" || f.Key == "set_temp" {
			t.Fatalf("unknown temperature written as field %q", f.Key)
		}
	}
}

type recordingWriter struct {
	err    error
	points int
}

func (w *recordingWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	w.points += len(points)
	return w.err
}

func TestInfluxSink_WritesPoint(t *testing.T) {
	w := &recordingWriter{}
	s := &InfluxSink{writer: w, device: "anova", log: logger.Nop()}

	if err := s.PublishStatus(context.Background(), sample); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if w.points != 1 {
		t.Fatalf("points=%d", w.points)
	}

	w.err = errors.New("bucket not found")
	if err := s.PublishStatus(context.Background(), sample); err == nil {
		t.Fatalf("expected write error")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

type stubSink struct {
	err       error
	published int
	closed    bool
}

func (s *stubSink) PublishStatus(context.Context, models.DeviceStatus) error {
	s.published++
	return s.err
}

func (s *stubSink) Close() error {
	s.closed = true
	return s.err
}

func TestMulti_TriesEverySink(t *testing.T) {
	failing := &stubSink{err: errors.New("down")}
	ok := &stubSink{}
	m := Multi{failing, ok}

	if err := m.PublishStatus(context.Background(), sample); err == nil {
		t.Fatalf("expected joined error")
	}
	if failing.published != 1 || ok.published != 1 {
		t.Fatalf("not every sink was called")
	}
	_ = m.Close()
	if !failing.closed || !ok.closed {
		t.Fatalf("not every sink was closed")
	}
}
