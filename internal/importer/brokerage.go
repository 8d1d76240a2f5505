// Package importer maps parsed brokerage 1099-B statements onto income line
// items. The upstream parser delivers a JSON statement with per-transaction
// rows and short/long-term summaries; this package turns those into
// capital-gain entries for a return, with wash-sale losses added back since
// they are disallowed for the year of sale.
package importer

import (
	"errors"
	"fmt"
	"strings"

	"taxprep/internal/core"
)

type (
	// Transaction is one 1099-B row. Amounts are decimal dollar strings as
	// printed on the statement, so no float drift sneaks in between the
	// parser and the return; summary rows use "Various" dates.
	Transaction struct {
		CUSIP        string  `json:"cusip"`
		Description  string  `json:"description"`
		DateAcquired string  `json:"dateAcquired"`
		DateSold     string  `json:"dateSold"`
		Proceeds     string  `json:"proceeds"`
		CostBasis    string  `json:"costBasis"`
		WashSaleLoss string  `json:"washSaleLoss"`
		NetGainLoss  string  `json:"netGainLoss"`
		Quantity     float64 `json:"quantity"`
		IsLongTerm   bool    `json:"isLongTerm"`
		FormType     string  `json:"formType"`
	}

	// Statement is a parsed 1099-B for one brokerage account.
	Statement struct {
		Brokerage            string        `json:"brokerage"`
		TotalProceeds        string        `json:"totalProceeds"`
		TotalCostBasis       string        `json:"totalCostBasis"`
		TotalNetGainLoss     string        `json:"totalNetGainLoss"`
		TotalWashSaleLoss    string        `json:"totalWashSaleLoss"`
		ShortTermNetGainLoss string        `json:"shortTermNetGainLoss"`
		LongTermNetGainLoss  string        `json:"longTermNetGainLoss"`
		Transactions         []Transaction `json:"transactions"`
	}
)

var (
	ErrNoTransactions = errors.New("statement has no transactions")
	ErrInconsistent   = errors.New("transaction totals do not match statement summary")
)

// summaryToleranceCents allows for the rounding slack brokerage PDFs carry
// between per-row figures and their printed grand total.
const summaryToleranceCents int64 = 100

// amountCents parses an optional dollar-string field. Statements omit
// fields whose value is zero.
func amountCents(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return core.ParseSignedDecimalToCents(s)
}

// Validate cross-checks the per-transaction rows against the statement
// summary before anything is imported.
func (s *Statement) Validate() error {
	if len(s.Transactions) == 0 {
		return ErrNoTransactions
	}
	var net int64
	for i, tx := range s.Transactions {
		cents, err := amountCents(tx.NetGainLoss)
		if err != nil {
			return fmt.Errorf("transaction %d net gain/loss %q: %w", i, tx.NetGainLoss, err)
		}
		net += cents
	}
	total, err := amountCents(s.TotalNetGainLoss)
	if err != nil {
		return fmt.Errorf("statement net gain/loss %q: %w", s.TotalNetGainLoss, err)
	}
	diff := net - total
	if diff < 0 {
		diff = -diff
	}
	if diff > summaryToleranceCents {
		return fmt.Errorf("%w: rows sum to %d cents, summary says %d cents",
			ErrInconsistent, net, total)
	}
	return nil
}

// IncomeItems converts the statement into capital-gain income line items.
// Each transaction's reportable gain is its net gain plus any wash-sale loss,
// because a wash sale's loss cannot offset gains in the year of sale.
func (s *Statement) IncomeItems() ([]core.IncomeItem, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	items := make([]core.IncomeItem, 0, len(s.Transactions))
	for i, tx := range s.Transactions {
		gain, err := amountCents(tx.NetGainLoss)
		if err != nil {
			return nil, fmt.Errorf("transaction %d net gain/loss %q: %w", i, tx.NetGainLoss, err)
		}
		washSale, err := amountCents(tx.WashSaleLoss)
		if err != nil {
			return nil, fmt.Errorf("transaction %d wash-sale loss %q: %w", i, tx.WashSaleLoss, err)
		}
		items = append(items, core.IncomeItem{
			Kind:        core.CapitalGain,
			Description: s.describe(tx),
			Amount:      core.Money{Cents: gain + washSale},
		})
	}
	return items, nil
}

func (s *Statement) describe(tx Transaction) string {
	desc := strings.TrimSpace(tx.Description)
	if desc == "" {
		desc = "capital gain"
	}
	term := "short-term"
	if tx.IsLongTerm {
		term = "long-term"
	}
	out := fmt.Sprintf("%s (%s)", desc, term)
	if broker := strings.TrimSpace(s.Brokerage); broker != "" {
		out = broker + ": " + out
	}
	if len(out) > 200 {
		out = out[:200]
	}
	return out
}
