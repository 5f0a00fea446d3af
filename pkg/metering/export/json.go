package export

import (
	"context"
	"encoding/json"
	"io"

	"devguard-hq/devguard/pkg/metering"
)

// JSONExporter exports telemetry events to JSON format.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{
		Pretty: pretty,
	}
}

// Export writes events to the provided writer as a JSON array.
func (e *JSONExporter) Export(ctx context.Context, events []*metering.Event, w io.Writer) error {
	if len(events) == 0 {
		_, err := w.Write([]byte("[]"))
		return err
	}

	var data []byte
	var err error

	if e.Pretty {
		data, err = json.MarshalIndent(events, "", "  ")
	} else {
		data, err = json.Marshal(events)
	}
	if err != nil {
		return metering.NewExportError("json", len(events), err)
	}

	if _, err := w.Write(data); err != nil {
		return metering.NewExportError("json", len(events), err)
	}

	return nil
}

// ExportStream exports events from a channel as a JSON array. This is
// memory-efficient for large result sets as it streams events one at a
// time instead of loading all of them in memory.
func (e *JSONExporter) ExportStream(ctx context.Context, eventsCh <-chan *metering.Event, w io.Writer) error {
	if _, err := w.Write([]byte("[")); err != nil {
		return metering.NewExportError("json", 0, err)
	}

	first := true
	count := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				if _, err := w.Write([]byte("]")); err != nil {
					return metering.NewExportError("json", count, err)
				}
				return nil
			}

			if !first {
				if _, err := w.Write([]byte(",")); err != nil {
					return metering.NewExportError("json", count, err)
				}
				if e.Pretty {
					if _, err := w.Write([]byte("\n")); err != nil {
						return metering.NewExportError("json", count, err)
					}
				}
			}
			first = false

			data, err := e.serializeEvent(event)
			if err != nil {
				return metering.NewExportError("json", count, err)
			}
			if _, err := w.Write(data); err != nil {
				return metering.NewExportError("json", count, err)
			}

			count++
		}
	}
}

// serializeEvent serializes a single event to JSON.
func (e *JSONExporter) serializeEvent(event *metering.Event) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(event, "  ", "  ")
	}
	return json.Marshal(event)
}
