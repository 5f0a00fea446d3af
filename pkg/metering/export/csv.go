package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"devguard-hq/devguard/pkg/metering"
)

// CSVExporter exports telemetry events to CSV format.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

// Export writes events to the provided writer in CSV format. The opaque
// payload is flattened to a JSON string column.
func (e *CSVExporter) Export(ctx context.Context, events []*metering.Event, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(headerRow()); err != nil {
			return metering.NewExportError("csv", len(events), err)
		}
	}

	for _, event := range events {
		if err := writer.Write(eventToRow(event)); err != nil {
			return metering.NewExportError("csv", len(events), err)
		}
	}

	return nil
}

// ExportStream exports events from a channel in CSV format. The writer
// flushes periodically to provide progress feedback for long exports.
func (e *CSVExporter) ExportStream(ctx context.Context, eventsCh <-chan *metering.Event, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(headerRow()); err != nil {
			return metering.NewExportError("csv", 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return metering.NewExportError("csv", count, err)
				}
				return nil
			}

			if err := writer.Write(eventToRow(event)); err != nil {
				return metering.NewExportError("csv", count, err)
			}

			count++

			// Flush every 100 rows so long exports show progress.
			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return metering.NewExportError("csv", count, err)
				}
			}
		}
	}
}

// headerRow returns the CSV header row.
func headerRow() []string {
	return []string{
		"id", "project_id", "stream", "dimension",
		"timestamp", "recorded_at", "environment",
		"cost_usd", "latency_ms", "rows", "risk_score",
		"payload",
	}
}

// eventToRow converts a telemetry event to a CSV row.
func eventToRow(event *metering.Event) []string {
	formatTime := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339Nano)
	}

	payload := ""
	if len(event.Payload) > 0 {
		data, _ := json.Marshal(event.Payload)
		payload = string(data)
	}

	return []string{
		event.ID,
		event.ProjectID,
		string(event.Stream),
		event.Dimension,
		formatTime(event.Timestamp),
		formatTime(event.RecordedAt),
		event.Environment,
		fmt.Sprintf("%.6f", event.Measures.CostUSD),
		fmt.Sprintf("%.3f", event.Measures.LatencyMS),
		fmt.Sprintf("%.0f", event.Measures.Rows),
		fmt.Sprintf("%.2f", event.Measures.RiskScore),
		payload,
	}
}
