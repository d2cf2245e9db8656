// Package csvio reads, validates and generates the flat files driving
// bulk user operations. Rows are keyed by the fixed column names each
// operation type defines.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Template column sets per bulk operation type.
var templates = map[string][]string{
	"user":       {"Email", "First_Name", "Last_Name", "Department", "Manager_Email", "Job_Title"},
	"department": {"Email", "Department"},
	"group":      {"Email", "Group_Name", "Action"},
	"deactivate": {"Email", "Reason"},
}

var sampleRows = map[string][]string{
	"user":       {"john.doe@example.com", "John", "Doe", "Engineering", "jane.smith@example.com", "Software Engineer"},
	"department": {"john.doe@example.com", "New Department"},
	"group":      {"john.doe@example.com", "Support Team", "add"},
	"deactivate": {"john.doe@example.com", "Left the company"},
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Row is one parsed CSV row keyed by header column name.
type Row map[string]string

// InvalidRow carries a rejected row with its position and reasons.
type InvalidRow struct {
	Row    Row
	RowNum int
	Errors []string
}

// Processor handles bulk-operation CSV files.
type Processor struct {
	log *logrus.Logger
}

func NewProcessor(log *logrus.Logger) *Processor {
	return &Processor{log: log}
}

// TemplateTypes lists the known template names.
func TemplateTypes() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadFile parses a CSV file into header-keyed rows. A missing file or a
// file without a header row is an error; an empty body is not.
func (p *Processor) ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			p.log.Errorf("CSV file not found: %s", path)
			return nil, fmt.Errorf("CSV file not found: %s", path)
		}
		return nil, err
	}
	defer f.Close()

	p.log.Infof("reading CSV file: %s", path)
	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			p.log.Errorf("CSV file has no header row: %s", path)
			return nil, fmt.Errorf("CSV file has no header row: %s", path)
		}
		return nil, fmt.Errorf("error parsing CSV file %s: %w", path, err)
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error parsing CSV file %s: %w", path, err)
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		p.log.Warnf("CSV file is empty: %s", path)
	} else {
		p.log.Infof("successfully read %d rows from CSV", len(rows))
	}
	return rows, nil
}

// ValidateUserRows splits rows into valid and invalid sets. A row must
// identify a user by Email or by both name columns, and any supplied email
// must be well-formed. Row numbers count from 2 to account for the header.
func (p *Processor) ValidateUserRows(rows []Row) ([]Row, []InvalidRow) {
	var valid []Row
	var invalid []InvalidRow

	for i, row := range rows {
		rowNum := i + 2
		var problems []string

		email := strings.TrimSpace(row["Email"])
		hasNames := strings.TrimSpace(row["First_Name"]) != "" && strings.TrimSpace(row["Last_Name"]) != ""

		if email == "" && !hasNames {
			problems = append(problems, "Row must have either Email or both First_Name and Last_Name")
		}
		if email != "" && !emailPattern.MatchString(email) {
			problems = append(problems, fmt.Sprintf("Invalid email format: %s", row["Email"]))
		}

		if len(problems) > 0 {
			invalid = append(invalid, InvalidRow{Row: row, RowNum: rowNum, Errors: problems})
			p.log.Warnf("invalid CSV row %d: %s", rowNum, strings.Join(problems, ", "))
			continue
		}
		valid = append(valid, row)
	}

	p.log.Infof("CSV validation: %d valid rows, %d invalid rows", len(valid), len(invalid))
	return valid, invalid
}

// WriteErrorReport dumps rejected rows with their errors so an operator
// can fix and resubmit them. Writing nothing for an empty set is success.
func (p *Processor) WriteErrorReport(invalid []InvalidRow, path string) error {
	if len(invalid) == 0 {
		p.log.Info("no errors to report")
		return nil
	}

	columns := map[string]bool{}
	for _, row := range invalid {
		for col := range row.Row {
			columns[col] = true
		}
	}
	sorted := make([]string, 0, len(columns))
	for col := range columns {
		sorted = append(sorted, col)
	}
	sort.Strings(sorted)
	header := append(append([]string{"Row"}, sorted...), "Errors")

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range invalid {
		record := []string{fmt.Sprintf("%d", row.RowNum)}
		for _, col := range sorted {
			record = append(record, row.Row[col])
		}
		record = append(record, strings.Join(row.Errors, "; "))
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	p.log.Infof("error report written to %s", path)
	return nil
}

// WriteTemplate creates a starter CSV for the given bulk operation type,
// with a sample row for guidance.
func (p *Processor) WriteTemplate(templateType, path string) error {
	header, ok := templates[templateType]
	if !ok {
		p.log.Errorf("unknown template type: %s", templateType)
		return fmt.Errorf("unknown template type: %s", templateType)
	}
	p.log.Infof("creating %s CSV template: %s", templateType, path)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.Write(sampleRows[templateType]); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	p.log.Infof("CSV template created: %s", path)
	return nil
}
