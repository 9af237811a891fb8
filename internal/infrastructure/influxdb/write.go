package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTick mirrors a live tick into the "ticks" measurement, tagged by
// symbol and stamped with the exchange timestamp. Writes are batched and
// flushed asynchronously by the client. Negative volume or open interest
// means the field is absent; index symbols carry neither.
func (c *Client) WriteTick(symbol string, ltp float64, volume, openInterest int64, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"ltp": ltp,
	}
	if volume >= 0 {
		fields["volume"] = volume
	}
	if openInterest >= 0 {
		fields["open_interest"] = openInterest
	}

	point := write.NewPoint(
		"ticks",
		map[string]string{
			"symbol": symbol,
		},
		fields,
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WriteJobRun records a finished job in the "job_runs" measurement so
// failure rates and durations can be graphed next to tick flow. status is
// the terminal run status, durationMS the wall-clock run time.
func (c *Client) WriteJobRun(jobName string, status string, durationMS int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"job_runs",
		map[string]string{
			"job":    jobName,
			"status": status,
		},
		map[string]interface{}{
			"duration_ms": durationMS,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
