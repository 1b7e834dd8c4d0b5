// Package lawdoc turns the Vietnamese law corpus into article documents:
// it reads the subject/text CSV, parses each law into chapters, articles,
// clauses and points, and renders one document per article.
package lawdoc

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Law is one row of the corpus.
type Law struct {
	Subject string
	Text    string
}

// ReadCSV reads laws from a CSV with a header naming the "subject" and "text"
// columns. Other columns are ignored. Text is NFC-normalized so the Vietnamese
// patterns match whatever composition the source used.
func ReadCSV(r io.Reader) ([]Law, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	subjectCol, textCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "subject":
			subjectCol = i
		case "text":
			textCol = i
		}
	}
	if subjectCol < 0 || textCol < 0 {
		return nil, fmt.Errorf("CSV header %v must contain subject and text columns", header)
	}

	var laws []Law
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		if subjectCol >= len(record) || textCol >= len(record) {
			return nil, fmt.Errorf("CSV record %d has %d columns", line, len(record))
		}

		laws = append(laws, Law{
			Subject: norm.NFC.String(strings.TrimSpace(record[subjectCol])),
			Text:    norm.NFC.String(record[textCol]),
		})
	}

	return laws, nil
}

// FilterLatest keeps the current consolidated version of each law: subjects
// marked "mới nhất" that are not amendments ("sửa đổi").
func FilterLatest(laws []Law) []Law {
	out := make([]Law, 0, len(laws))
	for _, law := range laws {
		if strings.Contains(law.Subject, "mới nhất") && !strings.Contains(law.Subject, "sửa đổi") {
			out = append(out, law)
		}
	}

	return out
}
