package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/settled-dev/settled/internal/model"
)

// maxDecimalPlaces is the precision bound on transaction amounts.
const maxDecimalPlaces = 4

// Columns the input file must carry, in any order.
const (
	colType   = "type"
	colClient = "client"
	colTx     = "tx"
	colAmount = "amount"
)

// Reader decodes transaction events from a CSV stream one row at a
// time. The header row fixes the column order; field values may carry
// surrounding whitespace.
type Reader struct {
	cr   *csv.Reader
	cols map[string]int
	row  int
	done bool
}

// NewReader reads and validates the header row and returns a streaming
// Reader. An empty input is a valid, empty stream.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &Reader{done: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch name {
		case colType, colClient, colTx, colAmount:
			if _, dup := cols[name]; dup {
				return nil, fmt.Errorf("duplicate header column %q", name)
			}
			cols[name] = i
		default:
			return nil, fmt.Errorf("invalid header column %q", name)
		}
	}
	for _, name := range []string{colType, colClient, colTx, colAmount} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing header column %q", name)
		}
	}

	cr.FieldsPerRecord = len(header)
	return &Reader{cr: cr, cols: cols, row: 1}, nil
}

// Next returns the next validated event, or io.EOF when the stream is
// exhausted.
func (r *Reader) Next() (model.Event, error) {
	if r.done {
		return model.Event{}, io.EOF
	}
	rec, err := r.cr.Read()
	if errors.Is(err, io.EOF) {
		r.done = true
		return model.Event{}, io.EOF
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("reading row: %w", err)
	}
	r.row++

	ev, err := r.unmarshal(rec)
	if err != nil {
		return model.Event{}, fmt.Errorf("row %d: %w", r.row, err)
	}
	return ev, nil
}

func (r *Reader) unmarshal(rec []string) (model.Event, error) {
	kind := model.EventKind(strings.TrimSpace(rec[r.cols[colType]]))
	switch kind {
	case model.KindDeposit, model.KindWithdrawal, model.KindDispute, model.KindResolve, model.KindChargeback:
	default:
		return model.Event{}, fmt.Errorf("unknown transaction type %q", kind)
	}

	client, err := strconv.ParseUint(strings.TrimSpace(rec[r.cols[colClient]]), 10, 16)
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing client %q: %w", rec[r.cols[colClient]], err)
	}

	tx, err := strconv.ParseUint(strings.TrimSpace(rec[r.cols[colTx]]), 10, 32)
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing tx %q: %w", rec[r.cols[colTx]], err)
	}

	amount, err := parseAmount(rec[r.cols[colAmount]])
	if err != nil {
		return model.Event{}, err
	}

	// Amount presence must match the kind before the event is let
	// anywhere near a ledger.
	if kind.MintsID() && amount == nil {
		return model.Event{}, fmt.Errorf("amount required for %s", kind)
	}
	if !kind.MintsID() && amount != nil {
		return model.Event{}, fmt.Errorf("amount not allowed for %s", kind)
	}

	return model.Event{
		Kind:   kind,
		Client: model.ClientID(client),
		Tx:     model.TxID(tx),
		Amount: amount,
	}, nil
}

// parseAmount parses an optional amount field. Empty means absent.
// Negative values, a bare leading decimal point, and more than 4
// decimal places are rejected.
func parseAmount(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, ".") {
		return nil, fmt.Errorf("leading decimal point not allowed: %q", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	if d.Exponent() < -maxDecimalPlaces {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, maxDecimalPlaces)
	}
	return &d, nil
}
