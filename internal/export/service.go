package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rpattn/rollcall/internal/domain"
	"github.com/rpattn/rollcall/internal/repository"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Format selects the output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

const (
	defaultPageSize = 1000
	sheetName       = "Sheet1"
)

// ParseFormat accepts "csv" or "xlsx", case-insensitively.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

type Service struct {
	rows     repository.RollCallRepository
	pageSize int
	logger   *zap.Logger
}

type Option func(*Service)

func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(rows repository.RollCallRepository, opts ...Option) *Service {
	service := &Service{
		rows:     rows,
		pageSize: defaultPageSize,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Export writes every stored row matching filter to w and returns the row count.
// The filter's Limit and Offset are managed by the pager and ignored.
func (s *Service) Export(ctx context.Context, w io.Writer, format Format, filter repository.RowFilter) (int, error) {
	var (
		exported int
		err      error
	)
	switch format {
	case FormatCSV:
		exported, err = s.writeCSV(ctx, w, filter)
	case FormatXLSX:
		exported, err = s.writeXLSX(ctx, w, filter)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return exported, err
	}

	s.logger.Info("export completed",
		zap.String("format", string(format)),
		zap.Int("rows", exported),
		zap.String("congress", filter.Congress),
		zap.String("session", filter.Session))
	return exported, nil
}

func (s *Service) writeCSV(ctx context.Context, w io.Writer, filter repository.RowFilter) (int, error) {
	buffered := bufio.NewWriterSize(w, 1<<16)
	csvWriter := csv.NewWriter(buffered)

	if err := csvWriter.Write(domain.Columns); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	exported, err := s.eachPage(ctx, filter, func(rows []domain.StoredRow) error {
		for _, row := range rows {
			if err := csvWriter.Write(row.Values()); err != nil {
				return fmt.Errorf("write row %d: %w", row.ID, err)
			}
		}
		csvWriter.Flush()
		return csvWriter.Error()
	})
	if err != nil {
		return exported, err
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return exported, fmt.Errorf("final flush: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return exported, fmt.Errorf("final buffered flush: %w", err)
	}
	return exported, nil
}

func (s *Service) writeXLSX(ctx context.Context, w io.Writer, filter repository.RowFilter) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	stream, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return 0, fmt.Errorf("create stream writer: %w", err)
	}

	if err := stream.SetRow("A1", toCells(domain.Columns)); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rowNumber := 1
	exported, err := s.eachPage(ctx, filter, func(rows []domain.StoredRow) error {
		for _, row := range rows {
			rowNumber++
			cell, err := excelize.CoordinatesToCellName(1, rowNumber)
			if err != nil {
				return err
			}
			if err := stream.SetRow(cell, toCells(row.Values())); err != nil {
				return fmt.Errorf("write row %d: %w", row.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return exported, err
	}

	if err := stream.Flush(); err != nil {
		return exported, fmt.Errorf("flush stream writer: %w", err)
	}
	if err := f.Write(w); err != nil {
		return exported, fmt.Errorf("write workbook: %w", err)
	}
	return exported, nil
}

// eachPage lists rows pageSize at a time until a short page is returned.
func (s *Service) eachPage(ctx context.Context, filter repository.RowFilter, fn func([]domain.StoredRow) error) (int, error) {
	filter.Limit = s.pageSize
	filter.Offset = 0
	exported := 0

	for {
		if err := ctx.Err(); err != nil {
			return exported, err
		}
		rows, err := s.rows.List(ctx, filter)
		if err != nil {
			return exported, fmt.Errorf("failed to list rows: %w", err)
		}
		if len(rows) == 0 {
			return exported, nil
		}
		if err := fn(rows); err != nil {
			return exported, err
		}
		exported += len(rows)
		if len(rows) < s.pageSize {
			return exported, nil
		}
		filter.Offset += s.pageSize
	}
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, value := range values {
		cells[i] = value
	}
	return cells
}
