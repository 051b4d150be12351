package loader

import (
	"bytes"
	"math"
)

// sniffDelimiter picks the candidate whose per-line count is most regular.
// Falls back to comma when nothing occurs consistently.
func sniffDelimiter(sample []byte) rune {
	candidates := []byte{',', '\t', ';', '|'}
	best := byte(',')
	bestScore := math.MaxFloat64

	for _, delim := range candidates {
		counts := countDelimiterPerLine(sample, delim)
		if len(counts) == 0 {
			continue
		}

		avg := mean(counts)
		if avg < 1 {
			continue
		}

		score := variance(counts) / avg
		if score < bestScore {
			bestScore = score
			best = delim
		}
	}
	return rune(best)
}

func countDelimiterPerLine(sample []byte, delim byte) []int {
	var counts []int
	inQuote := false
	count := 0

	for _, b := range sample {
		if b == '"' {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		switch b {
		case delim:
			count++
		case '\n':
			counts = append(counts, count)
			count = 0
		}
	}

	// last line without a trailing newline
	if count > 0 || (len(sample) > 0 && !bytes.HasSuffix(sample, []byte("\n"))) {
		counts = append(counts, count)
	}
	return counts
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func variance(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := float64(v) - m
		sum += d * d
	}
	return sum / float64(len(values))
}
