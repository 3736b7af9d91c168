// Package diff computes line-level edit scripts between two texts.
//
// The alignment is the classic longest-common-subsequence table. On ties the
// backtrack prefers INSERT over DELETE, which fixes one canonical script for
// any pair of inputs.
package diff

import (
	"fmt"
	"strings"
)

type Op string

const (
	OpEqual  Op = "EQUAL"
	OpInsert Op = "INSERT"
	OpDelete Op = "DELETE"
)

// Line is one step of an edit script. LineA and LineB are 1-indexed
// positions in the source and target texts; the side an operation does not
// touch carries 0.
type Line struct {
	Op      Op     `json:"type"`
	Content string `json:"content"`
	LineA   int    `json:"lineInA"`
	LineB   int    `json:"lineInB"`
}

type Stats struct {
	Inserted  int `json:"inserted"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// SplitLines splits text on "\n". The empty text has no lines; otherwise a
// trailing newline yields a trailing empty line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func JoinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

func Diff(textA, textB string) []Line {
	return Lines(SplitLines(textA), SplitLines(textB))
}

func Lines(a, b []string) []Line {
	n, m := len(a), len(b)
	width := m + 1
	table := make([]int32, (n+1)*width)
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if a[i-1] == b[j-1] {
				table[i*width+j] = table[(i-1)*width+j-1] + 1
				continue
			}
			up, left := table[(i-1)*width+j], table[i*width+j-1]
			if up >= left {
				table[i*width+j] = up
			} else {
				table[i*width+j] = left
			}
		}
	}

	out := make([]Line, 0, n+m)
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1] == b[j-1]:
			out = append(out, Line{Op: OpEqual, Content: a[i-1], LineA: i, LineB: j})
			i--
			j--
		case j > 0 && (i == 0 || table[i*width+j-1] >= table[(i-1)*width+j]):
			out = append(out, Line{Op: OpInsert, Content: b[j-1], LineB: j})
			j--
		default:
			out = append(out, Line{Op: OpDelete, Content: a[i-1], LineA: i})
			i--
		}
	}

	for left, right := 0, len(out)-1; left < right; left, right = left+1, right-1 {
		out[left], out[right] = out[right], out[left]
	}
	return out
}

func Summarize(lines []Line) Stats {
	var stats Stats
	for _, line := range lines {
		switch line.Op {
		case OpInsert:
			stats.Inserted++
		case OpDelete:
			stats.Deleted++
		default:
			stats.Unchanged++
		}
	}
	return stats
}

// Apply replays lines as a patch over base and returns the target text.
func Apply(base string, lines []Line) (string, error) {
	source := SplitLines(base)
	target := make([]string, 0, len(source))
	pos := 0
	for idx, line := range lines {
		switch line.Op {
		case OpEqual, OpDelete:
			if pos >= len(source) {
				return "", fmt.Errorf("apply step %d: base exhausted at line %d", idx, pos+1)
			}
			if source[pos] != line.Content {
				return "", fmt.Errorf("apply step %d: base line %d is %q, script expects %q", idx, pos+1, source[pos], line.Content)
			}
			if line.Op == OpEqual {
				target = append(target, line.Content)
			}
			pos++
		case OpInsert:
			target = append(target, line.Content)
		default:
			return "", fmt.Errorf("apply step %d: unknown op %q", idx, line.Op)
		}
	}
	if pos != len(source) {
		return "", fmt.Errorf("apply: %d base lines left unconsumed", len(source)-pos)
	}
	return JoinLines(target), nil
}

// Unified renders lines with a one-character prefix per line.
func Unified(lines []Line) string {
	var b strings.Builder
	for _, line := range lines {
		switch line.Op {
		case OpInsert:
			b.WriteByte('+')
		case OpDelete:
			b.WriteByte('-')
		default:
			b.WriteByte(' ')
		}
		b.WriteString(line.Content)
		b.WriteByte('\n')
	}
	return b.String()
}
