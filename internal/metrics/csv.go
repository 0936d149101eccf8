package metrics

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"sdnctl/internal/model"
)

var header = []string{
	"timestamp",
	"switch_id",
	"load",
	"packets",
	"sender",
}

// WriteCSV writes load samples to CSV with a fixed column order.
func WriteCSV(w io.Writer, items []model.LoadSample) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writeRecords(writer, items); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// AppendCSV appends samples to path, writing the header only when the file
// is new or empty. Callers serialize concurrent appends.
func AppendCSV(path string, items []model.LoadSample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	if err := writeRecords(writer, items); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func writeRecords(writer *csv.Writer, items []model.LoadSample) error {
	for _, m := range items {
		record := []string{
			m.Timestamp.UTC().Format(time.RFC3339Nano),
			m.SwitchID,
			strconv.FormatFloat(m.Load, 'f', 4, 64),
			strconv.Itoa(m.Packets),
			m.Sender,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}
