package jobs

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// export is the JSON export document.
type export struct {
	*Snapshot
	Metrics  *Metrics      `json:"metrics"`
	Outcomes []ItemOutcome `json:"outcomes"`
}

var csvHeader = []string{"id", "locator", "title", "source_type", "depth", "status", "stage", "attempts", "node_id", "error_kind", "error"}

// Export renders the job's items in format ("json" or "csv") and returns
// the content with its MIME type.
func (c *Controller) Export(id, format string) ([]byte, string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCSV {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	j, err := c.job(id)
	if err != nil {
		return nil, "", err
	}
	j.mu.Lock()
	doc := export{
		Snapshot: j.snapshotLocked(),
		Metrics:  j.metricsLocked(time.Now()),
	}
	doc.Outcomes = append([]ItemOutcome{}, j.outcomes...)
	j.mu.Unlock()

	if format == FormatJSON {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, "", err
	}
	for _, it := range doc.Items {
		nodeID := ""
		if it.NodeID != 0 {
			nodeID = strconv.FormatUint(uint64(it.NodeID), 10)
		}
		row := []string{
			it.ID,
			it.Locator,
			it.Title,
			string(it.SourceType),
			strconv.Itoa(it.Depth),
			string(it.Status),
			string(it.Stage),
			strconv.Itoa(it.Attempts),
			nodeID,
			string(it.ErrorKind),
			it.Error,
		}
		if err := w.Write(row); err != nil {
			return nil, "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "text/csv", nil
}
