package backup

import (
	"encoding/csv"
	"io"
	"strings"
	"time"

	"SpeakCEO/internal/db"
)

const csvDate = "2006-01-02 15:04"

var (
	managerHeader  = []string{"ID", "Date", "Name", "Email", "Phone", "Source", "CTA Type", "Status", "Priority", "Notes"}
	detailedHeader = []string{"Date", "Source", "CTA Type", "Name", "Email", "Phone", "Parent Name", "Student Name", "Child Age", "Message", "Priority", "Status"}
)

// WriteLeadsCSV writes the lead manager view.
func WriteLeadsCSV(w io.Writer, leads []*db.Lead) error {
	return writeCSV(w, managerHeader, leads, func(l *db.Lead) []string {
		return []string{
			l.ID,
			formatDate(l.Timestamp),
			l.FormData.Name,
			l.FormData.Email,
			l.FormData.Phone,
			l.Source,
			l.CTAType,
			string(l.Status),
			string(l.Priority),
			strings.ReplaceAll(l.Notes, "\n", "; "),
		}
	})
}

// WriteDetailedCSV writes every captured form field, for spreadsheet backups.
func WriteDetailedCSV(w io.Writer, leads []*db.Lead) error {
	return writeCSV(w, detailedHeader, leads, func(l *db.Lead) []string {
		f := l.FormData
		return []string{
			formatDate(l.Timestamp),
			l.Source,
			l.CTAType,
			f.Name,
			f.Email,
			f.Phone,
			f.ParentName,
			f.StudentName,
			f.ChildAge,
			f.Message,
			string(l.Priority),
			string(l.Status),
		}
	})
}

func writeCSV(w io.Writer, header []string, leads []*db.Lead, row func(*db.Lead) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, l := range leads {
		cells := row(l)
		for i, c := range cells {
			cells[i] = neutralize(c)
		}
		if err := cw.Write(cells); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// neutralize keeps spreadsheet apps from evaluating form input as a formula.
func neutralize(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + cell
	}
	return cell
}

func formatDate(t time.Time) string {
	return t.UTC().Format(csvDate)
}

// CSVFileName is the download name for a CSV export taken at now.
func CSVFileName(prefix string, now time.Time) string {
	return prefix + "-" + now.UTC().Format("2006-01-02") + ".csv"
}
