package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/settled-dev/settled/internal/ledger"
)

// Header is the CSV header for the balance report.
const Header = "client,available,held,total,locked"

// amountScale is the number of decimal places amounts are printed at.
const amountScale = 4

// Write renders the balance report as CSV. Balances are written in the
// order given; ledger.Balances already sorts by client id.
func Write(w io.Writer, balances []ledger.Balance) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, b := range balances {
		row := []string{
			strconv.FormatUint(uint64(b.Client), 10),
			b.Available.StringFixed(amountScale),
			b.Held.StringFixed(amountScale),
			b.Total.StringFixed(amountScale),
			strconv.FormatBool(b.Locked),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing client %d: %w", b.Client, err)
		}
	}
	return cw.Error()
}
