package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Segment is one span of recognized speech as reported by an engine.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"word"`
}

// Result is the raw engine output. A nil *Result means no transcription.
type Result struct {
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

type Timestamp struct {
	Start Seconds `json:"start"`
	End   Seconds `json:"end"`
}

type Record struct {
	Timestamp Timestamp `json:"timestamp"`
	Sentence  string    `json:"sentence"`
}

// Seconds always renders with a fractional part so that 3 is written as 3.0.
type Seconds float64

func (s Seconds) MarshalJSON() ([]byte, error) {
	value := strconv.FormatFloat(float64(s), 'f', -1, 64)
	if !strings.ContainsAny(value, ".eE") {
		value += ".0"
	}
	return []byte(value), nil
}

const precision = 2

// Format flattens a result into records, one per segment, in source order.
func Format(result *Result) []Record {
	records := make([]Record, 0)
	if result == nil {
		return records
	}

	for _, segment := range result.Segments {
		records = append(records, Record{
			Timestamp: Timestamp{
				Start: RoundSeconds(segment.Start),
				End:   RoundSeconds(segment.End),
			},
			Sentence: strings.TrimSpace(segment.Text),
		})
	}

	return records
}

// RoundSeconds rounds the exact binary value to two decimals, ties to even,
// so 2.675 (stored as 2.67499...) becomes 2.67.
func RoundSeconds(value float64) Seconds {
	rounded, err := decimal.NewFromString(strconv.FormatFloat(value, 'f', precision, 64))
	if err != nil {
		return Seconds(value)
	}
	f, _ := rounded.Float64()
	return Seconds(f)
}

// Encode writes records as an indented JSON array terminated by a newline.
func Encode(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// DecodeResult parses an engine JSON document carrying a "segments" array.
func DecodeResult(data []byte) (*Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode transcription result: %w", err)
	}
	return &result, nil
}
