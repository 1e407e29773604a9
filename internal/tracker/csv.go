package tracker

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/peaking-cli/internal/model"
)

// ReadCSV reads tracker rows from a CSV export. Rows before HeaderRow are
// skipped.
func ReadCSV(ctx context.Context, r io.Reader, opts Options) ([]model.RawRow, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowCh, errCh := streamCSV(ctx, r)
	headerIdx := headerIndex(opts)

	var (
		l     layout
		rows  []model.RawRow
		index int
	)
	for cells := range rowCh {
		switch {
		case index < headerIdx:
		case index == headerIdx:
			var err error
			if l, err = resolveLayout(cells, opts.Columns); err != nil {
				return nil, err
			}
		default:
			if row, ok := l.parseRow(index+1, cells); ok {
				rows = append(rows, row)
			}
		}
		index++
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if index <= headerIdx {
		return nil, eris.Errorf("tracker: csv has %d rows, header expected on row %d", index, headerIdx+1)
	}

	zap.L().Info("tracker: csv read", zap.Int("rows", len(rows)))
	return rows, nil
}

// streamCSV parses r on a separate goroutine. Both channels are closed when
// parsing completes; at most one error is sent.
func streamCSV(ctx context.Context, r io.Reader) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "tracker: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "tracker: read csv row")
				return
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "tracker: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
