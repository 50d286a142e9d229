package telemetry

import (
	"context"
	"fmt"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"sous_vide/internal/logger"
	"sous_vide/internal/models"
)

const statusMeasurement = "device_status"

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	Device string
}

// pointWriter is the slice of api.WriteAPIBlocking the sink uses.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink stores each status as a point in the device_status measurement.
type InfluxSink struct {
	client influxdb2.Client
	writer pointWriter
	device string
	log    *logger.Logger
}

func NewInfluxSink(cfg InfluxConfig, log *logger.Logger) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		device: cfg.Device,
		log:    logger.OrNop(log),
	}
}

func (s *InfluxSink) PublishStatus(ctx context.Context, st models.DeviceStatus) error {
	p := statusPoint(s.device, st)
	if err := s.writer.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write status point: %w", err)
	}
	s.log.Debugw("influx_status_written", "device", s.device)
	return nil
}

func (s *InfluxSink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// statusPoint converts a status into a point. Temperatures the device did
// not report are left out rather than written as zero.
func statusPoint(device string, st models.DeviceStatus) *write.Point {
	tags := map[string]string{
		"device": device,
		"unit":   st.Unit,
	}
	fields := map[string]interface{}{
		"state":     st.State,
		"link_open": st.LinkOpen,
	}
	if v, err := strconv.ParseFloat(st.CurrentTemp, 64); err == nil {
		fields["current_temp"] = v
	}
	if v, err := strconv.ParseFloat(st.SetTemp, 64); err == nil {
		fields["set_temp"] = v
	}
	return influxdb2.NewPoint(statusMeasurement, tags, fields, st.UpdatedAt)
}
