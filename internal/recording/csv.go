// Package recording reads and writes calibration recordings and decoder
// files used by the offline tooling.
package recording

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"eeg-decoder-service/internal/core/domain"
)

// MarkerColumn is the optional header naming the event label column.
const MarkerColumn = "marker"

var ErrInvalidCSV = errors.New("invalid recording csv")

// ReadCSV parses a recording with one column per channel and one row per
// sample. A column named "marker" carries event labels: a non-empty cell
// marks an event onset at that row.
func ReadCSV(r io.Reader, rate float64, eog []string) (*domain.Recording, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidCSV, err)
	}
	marker := -1
	var channels []string
	var columns []int
	for i, h := range header {
		h = strings.TrimSpace(h)
		if strings.EqualFold(h, MarkerColumn) {
			if marker >= 0 {
				return nil, fmt.Errorf("%w: duplicate %s column", ErrInvalidCSV, MarkerColumn)
			}
			marker = i
			continue
		}
		channels = append(channels, h)
		columns = append(columns, i)
	}

	rec := &domain.Recording{
		Montage: domain.Montage{Channels: channels, SampleRate: rate, EOGChannels: eog},
		Samples: make([][]float64, len(channels)),
	}
	if err := rec.Montage.Validate(); err != nil {
		return nil, err
	}

	for row := 0; ; row++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalidCSV, row+1, err)
		}
		for c, col := range columns {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[col]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %s: %v", ErrInvalidCSV, row+1, channels[c], err)
			}
			rec.Samples[c] = append(rec.Samples[c], v)
		}
		if marker >= 0 {
			if label := strings.TrimSpace(fields[marker]); label != "" {
				rec.Events = append(rec.Events, domain.Event{Sample: row, Label: label})
			}
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// WriteCSV writes rec in the format ReadCSV expects. The marker column is
// only written when the recording has events.
func WriteCSV(w io.Writer, rec *domain.Recording) error {
	markers := make(map[int]string, len(rec.Events))
	for _, ev := range rec.Events {
		if prev, ok := markers[ev.Sample]; ok {
			return fmt.Errorf("%w: events %q and %q share sample %d", ErrInvalidCSV, prev, ev.Label, ev.Sample)
		}
		markers[ev.Sample] = ev.Label
	}

	cw := csv.NewWriter(w)
	header := append([]string(nil), rec.Montage.Channels...)
	if len(markers) > 0 {
		header = append(header, MarkerColumn)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i := 0; i < rec.Len(); i++ {
		for c := range rec.Samples {
			row[c] = strconv.FormatFloat(rec.Samples[c][i], 'g', -1, 64)
		}
		if len(markers) > 0 {
			row[len(row)-1] = markers[i]
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// LoadCSV opens and parses a recording file.
func LoadCSV(path string, rate float64, eog []string) (*domain.Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f, rate, eog)
}
