// Package output renders analysis reports and file descriptions for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/temirov/reposcope/internal/types"
	"github.com/temirov/reposcope/internal/utils"
)

const (
	indentPrefix = ""
	indentSpacer = "  "

	treeBranchConnector = "├── "
	treeLastConnector   = "└── "
	treeBranchPadding   = "│   "
	treeLastPadding     = "    "

	totalLinesFormat    = "Total lines: %d\n"
	languagesHeader     = "Languages:"
	fileTypesHeader     = "File types:"
	structureHeader     = "Structure:"
	languageLineFormat  = "  %s %.2f%%\n"
	fileTypeLineFormat  = "  %s %d\n"
	fileNodeFormat      = "%s%s (%s)\n"
	directoryNodeFormat = "%s%s/\n"
	truncatedNodeFormat = "%s%s/ [truncated]\n"
	fileInfoLineFormat  = "%-15s %v\n"
	unsupportedFormat   = "unsupported output format %q"
)

// Render writes value in the requested format. JSON works for any value;
// raw is supported for reports and file descriptions.
func Render(writer io.Writer, format string, value interface{}) error {
	switch format {
	case types.FormatJSON:
		return WriteJSON(writer, value)
	case types.FormatRaw:
		switch typed := value.(type) {
		case types.AnalysisReport:
			return WriteReportRaw(writer, typed)
		case types.FileInfo:
			return WriteFileInfoRaw(writer, typed)
		}
	}
	return fmt.Errorf(unsupportedFormat, format)
}

// WriteJSON writes value as indented JSON followed by a newline.
func WriteJSON(writer io.Writer, value interface{}) error {
	encoded, encodeError := json.MarshalIndent(value, indentPrefix, indentSpacer)
	if encodeError != nil {
		return encodeError
	}
	_, writeError := fmt.Fprintln(writer, string(encoded))
	return writeError
}

// WriteReportRaw prints the totals, the language and file-type breakdowns and
// the structure tree.
func WriteReportRaw(writer io.Writer, report types.AnalysisReport) error {
	textWriter := &errorWriter{writer: writer}
	textWriter.printf(totalLinesFormat, report.TotalLines)

	textWriter.println(languagesHeader)
	for _, language := range languagesByShare(report.Languages) {
		textWriter.printf(languageLineFormat, language, report.Languages[language])
	}

	textWriter.println(fileTypesHeader)
	for _, extension := range sortedKeys(report.FileTypes) {
		textWriter.printf(fileTypeLineFormat, extension, report.FileTypes[extension])
	}

	textWriter.println(structureHeader)
	for index, node := range report.Structure {
		writeStructureNode(textWriter, node, "", index == len(report.Structure)-1)
	}
	return textWriter.err
}

// WriteFileInfoRaw prints one aligned line per attribute.
func WriteFileInfoRaw(writer io.Writer, information types.FileInfo) error {
	textWriter := &errorWriter{writer: writer}
	rows := []struct {
		label string
		value interface{}
	}{
		{"Name", information.Name},
		{"Path", information.Path},
		{"Size", fmt.Sprintf("%d (%s)", information.Size, information.HumanSize)},
		{"Extension", information.Extension},
		{"Language", information.Language},
		{"MIME type", information.MimeType},
		{"Binary", information.IsBinary},
		{"Modified", information.ModifiedLocal},
	}
	for _, row := range rows {
		textWriter.printf(fileInfoLineFormat, row.label+":", row.value)
	}
	return textWriter.err
}

func writeStructureNode(writer *errorWriter, node types.StructureNode, prefix string, isLast bool) {
	connector := treeBranchConnector
	childPrefix := prefix + treeBranchPadding
	if isLast {
		connector = treeLastConnector
		childPrefix = prefix + treeLastPadding
	}
	switch {
	case node.IsFile():
		writer.printf(fileNodeFormat, prefix+connector, node.Name, utils.FormatFileSize(node.Size))
		return
	case node.Truncated:
		writer.printf(truncatedNodeFormat, prefix+connector, node.Name)
		return
	}
	writer.printf(directoryNodeFormat, prefix+connector, node.Name)
	for index, child := range node.Children {
		writeStructureNode(writer, child, childPrefix, index == len(node.Children)-1)
	}
}

// languagesByShare orders languages by descending share, then by name.
func languagesByShare(languages map[string]float64) []string {
	names := make([]string, 0, len(languages))
	for name := range languages {
		names = append(names, name)
	}
	sort.Slice(names, func(left, right int) bool {
		if languages[names[left]] != languages[names[right]] {
			return languages[names[left]] > languages[names[right]]
		}
		return names[left] < names[right]
	})
	return names
}

func sortedKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// errorWriter keeps the first write error so rendering code stays linear.
type errorWriter struct {
	writer io.Writer
	err    error
}

func (writer *errorWriter) printf(format string, arguments ...interface{}) {
	if writer.err != nil {
		return
	}
	_, writer.err = fmt.Fprintf(writer.writer, format, arguments...)
}

func (writer *errorWriter) println(line string) {
	if writer.err != nil {
		return
	}
	_, writer.err = fmt.Fprintln(writer.writer, line)
}
