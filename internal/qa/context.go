package qa

import (
	"regexp"
	"strconv"
	"strings"
)

// BlockType is the shape of a retrieved context block.
type BlockType string

const (
	BlockText  BlockType = "text"
	BlockTable BlockType = "table"
	BlockList  BlockType = "list"
)

// ClassifyBlock reports whether a block is a pipe table, a list or plain text.
// A table may be preceded by a single "[caption]" line.
func ClassifyBlock(block string) BlockType {
	lines := nonEmptyLines(block)
	if len(lines) == 0 {
		return BlockText
	}
	if isPipeRow(lines[0]) {
		return BlockTable
	}
	if isCaption(lines[0]) && len(lines) > 1 && isPipeRow(lines[1]) {
		return BlockTable
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "-") && !startsWithDigit(line) {
			return BlockText
		}
	}
	return BlockList
}

// Threshold is a "<column> <N> or more" condition parsed from a question.
type Threshold struct {
	Column string
	Min    int
}

var thresholdPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)([\p{L}\p{N}_]+)\s+(\d+)\s+or\s+(?:more|above|greater|higher)`),
	regexp.MustCompile(`([가-힣A-Za-z0-9_]+)\s*([0-9]+)명\s*이상`),
}

// ParseThreshold finds a numeric threshold in question.
func ParseThreshold(question string) (Threshold, bool) {
	for _, re := range thresholdPatterns {
		m := re.FindStringSubmatch(question)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		return Threshold{Column: m[1], Min: n}, true
	}
	return Threshold{}, false
}

// FilterTables applies a threshold found in question to every table block.
// Blocks are returned unchanged when the question carries no threshold.
// A table block with no surviving data rows is dropped.
func FilterTables(blocks []string, question string) []string {
	th, ok := ParseThreshold(question)
	if !ok {
		return blocks
	}

	out := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if ClassifyBlock(block) != BlockTable {
			out = append(out, block)
			continue
		}
		if filtered, keep := filterTable(block, th); keep {
			out = append(out, filtered)
		}
	}
	return out
}

func filterTable(block string, th Threshold) (string, bool) {
	lines := nonEmptyLines(block)

	headerAt := -1
	for i, line := range lines {
		if isPipeRow(line) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return block, true
	}

	col := columnIndex(splitRow(lines[headerAt]), th.Column)
	if col < 0 {
		return block, true
	}

	kept := append([]string{}, lines[:headerAt+1]...)
	rows := 0
	for _, line := range lines[headerAt+1:] {
		// Separator rows are table structure, not data rows.
		if !isPipeRow(line) || isSeparatorRow(line) {
			kept = append(kept, line)
			continue
		}
		cells := splitRow(line)
		if col >= len(cells) {
			continue
		}
		n, err := strconv.Atoi(strings.ReplaceAll(cells[col], ",", ""))
		if err != nil || n < th.Min {
			continue
		}
		kept = append(kept, line)
		rows++
	}
	if rows == 0 {
		return "", false
	}
	return strings.Join(kept, "\n"), true
}

func columnIndex(header []string, column string) int {
	for i, cell := range header {
		if cell == column {
			return i
		}
	}
	for i, cell := range header {
		if strings.EqualFold(cell, column) {
			return i
		}
	}
	return -1
}

func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func nonEmptyLines(block string) []string {
	var lines []string
	for _, line := range strings.Split(block, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func isPipeRow(line string) bool {
	return len(line) > 1 && strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|")
}

func isSeparatorRow(line string) bool {
	return strings.Trim(line, "|-: ") == ""
}

func isCaption(line string) bool {
	return strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")
}

func startsWithDigit(line string) bool {
	return line != "" && line[0] >= '0' && line[0] <= '9'
}
