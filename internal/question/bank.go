package question

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
)

var (
	ErrBankTooSmall  = errors.New("question bank too small")
	ErrMissingColumn = errors.New("missing required column")
)

var (
	promptHeaders   = []string{"題目", "Question", "question"}
	answerHeaders   = []string{"答案", "正確答案", "Answer", "answer"}
	categoryHeaders = []string{"分類", "Category", "category"}
	optionHeaders   = [][]string{
		{"選項A", "A", "optionA"},
		{"選項B", "B", "optionB"},
		{"選項C", "C", "optionC"},
		{"選項D", "D", "optionD"},
	}
)

// Bank is an immutable, indexed list of questions.
type Bank struct {
	questions []Question
}

// NewBank wraps an already parsed question list.
func NewBank(questions []Question) *Bank {
	return &Bank{questions: append([]Question(nil), questions...)}
}

// LoadFile reads a CSV question bank from disk.
func LoadFile(path string) (*Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open question bank: %w", err)
	}
	defer f.Close()
	return LoadCSV(f)
}

// LoadCSV parses a question bank with a header row. Header names may be Chinese or English.
func LoadCSV(r io.Reader) (*Bank, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	cols := indexHeader(header)

	promptCol := cols.find(promptHeaders)
	answerCol := cols.find(answerHeaders)
	if promptCol < 0 {
		return nil, fmt.Errorf("%w: question", ErrMissingColumn)
	}
	if answerCol < 0 {
		return nil, fmt.Errorf("%w: answer", ErrMissingColumn)
	}
	categoryCol := cols.find(categoryHeaders)
	optionCols := make([]int, 0, len(optionHeaders))
	for _, aliases := range optionHeaders {
		if idx := cols.find(aliases); idx >= 0 {
			optionCols = append(optionCols, idx)
		}
	}

	var questions []Question
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		q := Question{
			Prompt:   cell(record, promptCol),
			Answer:   cell(record, answerCol),
			Category: cell(record, categoryCol),
		}
		if q.Category == "" {
			q.Category = DefaultCategory
		}
		for _, idx := range optionCols {
			if opt := cell(record, idx); opt != "" {
				q.Options = append(q.Options, opt)
			}
		}
		if q.Prompt == "" || q.Answer == "" || len(q.Options) < 2 {
			continue
		}
		questions = append(questions, q)
	}
	return &Bank{questions: questions}, nil
}

// Len returns the number of questions.
func (b *Bank) Len() int { return len(b.questions) }

// Question returns the question at idx.
func (b *Bank) Question(idx int) (Question, bool) {
	if idx < 0 || idx >= len(b.questions) {
		return Question{}, false
	}
	return b.questions[idx], true
}

// Sample draws n distinct indices in random order.
func (b *Bank) Sample(rng *rand.Rand, n int) ([]int, error) {
	if n > len(b.questions) {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrBankTooSmall, n, len(b.questions))
	}
	return rng.Perm(len(b.questions))[:n], nil
}

type headerIndex map[string]int

func indexHeader(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, ok := idx[h]; !ok {
			idx[h] = i
		}
	}
	return idx
}

func (h headerIndex) find(aliases []string) int {
	for _, a := range aliases {
		if i, ok := h[a]; ok {
			return i
		}
	}
	return -1
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
