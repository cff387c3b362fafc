package schedule

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// ExportHeader is the CSV header row written by WriteCSV.
var ExportHeader = []string{"Task ID", "Name", "Start", "End", "Progress", "Dependencies"}

// ExportDateLayout formats task dates in exports.
const ExportDateLayout = "2006-01-02"

// WriteCSV writes tasks as CSV. Names are always quoted with embedded quotes
// doubled; other fields are quoted only when they contain a comma, quote or newline.
func WriteCSV(w io.Writer, tasks []*Task) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(strings.Join(ExportHeader, ",") + "\n"); err != nil {
		return err
	}

	for _, task := range tasks {
		fields := []string{
			quoteIfNeeded(task.ID),
			quote(task.Name),
			task.Start.Format(ExportDateLayout),
			task.End.Format(ExportDateLayout),
			strconv.Itoa(task.Progress),
			quoteIfNeeded(task.DependencyList()),
		}
		if _, err := bw.WriteString(strings.Join(fields, ",") + "\n"); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		return quote(s)
	}
	return s
}
