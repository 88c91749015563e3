// Package wsmetrics provides functions to record connection-lifecycle
// metrics data. It is a very thin layer over CSV files, for simple
// setups that don't run a full metrics backend.
package wsmetrics

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultMetricsFileOpens    = "wsock_metrics_opens.csv"
	DefaultMetricsFileCloses   = "wsock_metrics_closes.csv"
	DefaultMetricsFileMessages = "wsock_metrics_messages.csv"
)

var (
	muOpens    sync.Mutex
	muCloses   sync.Mutex
	muMessages sync.Mutex
)

// RecordOpen counts a connection reaching the Open state.
func RecordOpen(l zerolog.Logger, t time.Time, connID, role string) {
	muOpens.Lock()
	defer muOpens.Unlock()

	record := []string{t.Format(time.RFC3339), connID, role}
	writeLineToFile(&l, DefaultMetricsFileOpens, record)
}

// RecordClose counts a connection completing its closing handshake.
func RecordClose(l zerolog.Logger, t time.Time, connID string, code int, wasClean bool) {
	muCloses.Lock()
	defer muCloses.Unlock()

	record := []string{t.Format(time.RFC3339), connID, strconv.Itoa(code), strconv.FormatBool(wasClean)}
	writeLineToFile(&l, DefaultMetricsFileCloses, record)
}

// RecordMessage counts one reassembled message delivered to a Handler.
func RecordMessage(l zerolog.Logger, t time.Time, connID, opcode string, byteLen int) {
	muMessages.Lock()
	defer muMessages.Unlock()

	record := []string{t.Format(time.RFC3339), connID, opcode, strconv.Itoa(byteLen)}
	writeLineToFile(&l, DefaultMetricsFileMessages, record)
}

func writeLineToFile(l *zerolog.Logger, filename string, record []string) {
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		if l != nil {
			l.Error().Err(err).Str("file", filename).Msg("failed to open metrics file")
		}
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(record); err != nil {
		if l != nil {
			l.Error().Err(err).Str("file", filename).Msg("failed to write metrics file")
		}
	}
	w.Flush()
}
