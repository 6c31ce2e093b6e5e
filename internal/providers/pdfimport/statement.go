// Package pdfimport ingests PDF-derived statements dropped into a
// directory, turning statement lines into ledger transactions.
package pdfimport

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/bobmcallan/ledgerd/internal/interfaces"
)

// statementLine matches "YYYY-MM-DD  Description  -123.45" rows. Bank
// statement PDFs flatten to this shape once plain text is extracted.
var statementLine = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\s+(.+?)\s+(-?[\d,]+\.\d{2})\s*$`)

// extractText extracts plain text from every page of a PDF.
func extractText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// parseStatement turns extracted statement text into provider
// transactions. External ids are content-derived so re-importing the same
// statement stays idempotent.
func parseStatement(accountID, text string) []interfaces.ProviderTransaction {
	var txns []interfaces.ProviderTransaction
	for _, line := range strings.Split(text, "\n") {
		m := statementLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		date, name, amount := m[1], strings.TrimSpace(m[2]), m[3]

		sum := sha1.Sum([]byte(accountID + "|" + date + "|" + name + "|" + amount))
		txns = append(txns, interfaces.ProviderTransaction{
			ExternalID: "stmt_" + hex.EncodeToString(sum[:8]),
			Amount:     amount,
			Date:       date,
			Name:       name,
		})
	}
	return txns
}

// statementAccountID derives the provider account id from the statement
// filename: everything before the first "__" (e.g. "visa-4421__2026-07.pdf").
func statementAccountID(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if idx := strings.Index(base, "__"); idx > 0 {
		return base[:idx]
	}
	return base
}

// DirectoryClient implements the provider client boundary over a drop
// directory of PDF statements.
type DirectoryClient struct {
	path     string
	currency string
}

// NewDirectoryClient creates a client reading statements under path.
// Statement amounts are assumed to be in the given currency.
func NewDirectoryClient(path, currency string) *DirectoryClient {
	if currency == "" {
		currency = "USD"
	}
	return &DirectoryClient{path: path, currency: currency}
}

// FetchSnapshot scans the drop directory and parses every statement into
// one snapshot. The raw payload is the concatenated extracted text.
func (c *DirectoryClient) FetchSnapshot(ctx context.Context, window interfaces.SyncWindow) (*interfaces.ProviderSnapshot, error) {
	files, err := filepath.Glob(filepath.Join(c.path, "*.pdf"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan statement directory: %w", err)
	}
	sort.Strings(files)

	byAccount := make(map[string][]interfaces.ProviderTransaction)
	var rawParts []string

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := extractText(file)
		if err != nil {
			// A corrupt statement is a per-file problem; keep going.
			rawParts = append(rawParts, fmt.Sprintf("## %s\nunreadable: %v", filepath.Base(file), err))
			continue
		}
		accountID := statementAccountID(file)
		for _, tx := range parseStatement(accountID, text) {
			tx.Currency = c.currency
			byAccount[accountID] = append(byAccount[accountID], tx)
		}
		rawParts = append(rawParts, fmt.Sprintf("## %s\n%s", filepath.Base(file), text))
	}

	snap := &interfaces.ProviderSnapshot{
		FetchedAt: time.Now(),
		Raw:       []byte(strings.Join(rawParts, "\n\n")),
	}
	accountIDs := make([]string, 0, len(byAccount))
	for id := range byAccount {
		accountIDs = append(accountIDs, id)
	}
	sort.Strings(accountIDs)
	for _, id := range accountIDs {
		snap.Accounts = append(snap.Accounts, interfaces.ProviderAccountData{
			ExternalID:   id,
			Name:         id,
			Currency:     c.currency,
			Transactions: byAccount[id],
		})
	}
	return snap, nil
}

// Exists reports whether the drop directory is usable.
func (c *DirectoryClient) Exists() bool {
	info, err := os.Stat(c.path)
	return err == nil && info.IsDir()
}
