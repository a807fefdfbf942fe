package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
)

func WriteKlinesToCSV(klines []*domain.Kline, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"})

	for _, k := range klines {
		writer.Write([]string{
			k.OpenTime.Format(time.RFC3339),
			k.CloseTime.Format(time.RFC3339),
			k.Symbol,
			k.Interval,
			strconv.FormatFloat(k.Open, 'f', -1, 64),
			strconv.FormatFloat(k.High, 'f', -1, 64),
			strconv.FormatFloat(k.Low, 'f', -1, 64),
			strconv.FormatFloat(k.Close, 'f', -1, 64),
			strconv.FormatFloat(k.Volume, 'f', -1, 64),
		})
	}
	return writer.Error()
}

// ReadKlinesFromCSV loads klines written by WriteKlinesToCSV. Candles read
// from disk are treated as closed.
func ReadKlinesFromCSV(filename string) ([]*domain.Kline, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 9

	// Skip header
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read CSV header from %s: %w", filename, err)
	}

	var klines []*domain.Kline
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record at line %d of %s: %w", line, filename, err)
		}

		k, err := parseKlineRecord(record)
		if err != nil {
			return nil, fmt.Errorf("invalid kline at line %d of %s: %w", line, filename, err)
		}
		klines = append(klines, k)
	}
	return klines, nil
}

func parseKlineRecord(record []string) (*domain.Kline, error) {
	openTime, err := time.Parse(time.RFC3339, record[0])
	if err != nil {
		return nil, fmt.Errorf("parsing open_time '%s': %w", record[0], err)
	}
	closeTime, err := time.Parse(time.RFC3339, record[1])
	if err != nil {
		return nil, fmt.Errorf("parsing close_time '%s': %w", record[1], err)
	}

	floats := make([]float64, 5)
	names := []string{"open", "high", "low", "close", "volume"}
	for i, raw := range record[4:9] {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %s '%s': %w", names[i], raw, err)
		}
		floats[i] = v
	}

	return &domain.Kline{
		OpenTime:  openTime,
		CloseTime: closeTime,
		Symbol:    record[2],
		Interval:  record[3],
		Open:      floats[0],
		High:      floats[1],
		Low:       floats[2],
		Close:     floats[3],
		Volume:    floats[4],
		IsFinal:   true,
	}, nil
}
