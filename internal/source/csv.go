package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Aghostraa/OLI-Converters/internal/domain/model"
)

// Address column aliases accepted in the input header. Historical exports
// name the address column "encode".
var addressColumns = []string{"address", "encode"}

const originKeyColumn = "origin_key"

// ReadRows loads input rows from a delimited file. The header row is
// required and must name an address column and origin_key. Malformed rows
// (missing columns, empty address) are skipped with a warning, never fatal.
func ReadRows(path string, logger *slog.Logger) ([]model.InputRow, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	return parseRows(f, logger.With("component", "source", "file", path))
}

func parseRows(r io.Reader, logger *slog.Logger) ([]model.InputRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}

	addressIdx, originIdx, err := locateColumns(header)
	if err != nil {
		return nil, err
	}

	var rows []model.InputRow
	line := 1
	for {
		line++
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("skipping malformed row", "line", line, "error", err)
			continue
		}
		if len(record) <= addressIdx || len(record) <= originIdx {
			logger.Warn("skipping row with too few columns", "line", line, "columns", len(record))
			continue
		}

		address := strings.TrimSpace(record[addressIdx])
		originKey := strings.TrimSpace(record[originIdx])
		if address == "" {
			logger.Warn("skipping row with empty address", "line", line)
			continue
		}
		if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
			address = "0x" + address
		}

		rows = append(rows, model.InputRow{Address: address, OriginKey: originKey})
	}

	logger.Info("input loaded", "rows", len(rows))
	return rows, nil
}

func locateColumns(header []string) (addressIdx, originIdx int, err error) {
	addressIdx, originIdx = -1, -1
	for i, name := range header {
		normalized := strings.ToLower(strings.TrimSpace(name))
		for _, alias := range addressColumns {
			if normalized == alias && addressIdx < 0 {
				addressIdx = i
			}
		}
		if normalized == originKeyColumn && originIdx < 0 {
			originIdx = i
		}
	}
	if addressIdx < 0 {
		return 0, 0, fmt.Errorf("header has no address column (one of: %s)", strings.Join(addressColumns, ", "))
	}
	if originIdx < 0 {
		return 0, 0, fmt.Errorf("header has no %s column", originKeyColumn)
	}
	return addressIdx, originIdx, nil
}
