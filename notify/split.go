package notify

import (
	"errors"
	"strings"
	"unicode/utf16"

	"go.uber.org/zap"

	"snwatch/logger"
)

// Measure reports how many units of a backend's length limit r takes up.
type Measure func(r rune) int

// Runes counts every code point as one unit.
func Runes(rune) int { return 1 }

// UTF16Units counts UTF-16 code units, the unit Telegram's message limit is in.
func UTF16Units(r rune) int {
	if n := len(utf16.Encode([]rune{r})); n > 0 {
		return n
	}
	return 1
}

var separators = [][]rune{[]rune("\n\n"), []rune("\n"), []rune(" ")}

// SplitMessage breaks msg into chunks of at most maxlen characters, preferring
// to cut at a blank line, then a newline, then a space, within the last three
// quarters of each chunk.
func SplitMessage(msg string, maxlen int) []string {
	return SplitMessageFunc(msg, maxlen, Runes)
}

// SplitMessageFunc is SplitMessage with maxlen expressed in measure units.
func SplitMessageFunc(msg string, maxlen int, measure Measure) []string {
	if maxlen <= 0 {
		return []string{msg}
	}
	runes := []rune(msg)
	var chunks []string
	for {
		fit := fitting(runes, maxlen, measure)
		if fit == len(runes) {
			break
		}
		lo := fitting(runes, maxlen/4, measure)
		cut := -1
		for _, sep := range separators {
			if pos := lastIndex(runes, sep, lo, fit); pos > 0 {
				cut = pos
				break
			}
		}
		if cut == -1 {
			// a single code point wider than maxlen still has to go somewhere
			fit = max(fit, 1)
			chunks = append(chunks, string(runes[:fit]))
			runes = runes[fit:]
			continue
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = []rune(strings.TrimLeft(string(runes[cut:]), "\n "))
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// fitting returns how many leading runes of s fit in limit units.
func fitting(s []rune, limit int, measure Measure) int {
	used := 0
	for i, r := range s {
		used += measure(r)
		if used > limit {
			return i
		}
	}
	return len(s)
}

// lastIndex finds the last start of sep in s[lo:hi], or -1.
func lastIndex(s, sep []rune, lo, hi int) int {
	for i := hi - len(sep); i >= lo; i-- {
		match := true
		for j := range sep {
			if s[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// sendChunks sends chunks in order. Once one chunk is through the message
// counts as delivered and a later failure is only logged. ErrBlocked always
// propagates.
func sendChunks(backend string, chunks []string, send func(i int, chunk string) error) error {
	for i, chunk := range chunks {
		err := send(i, chunk)
		if err == nil {
			continue
		}
		if i == 0 || errors.Is(err, ErrBlocked) {
			return err
		}
		logger.Logger.Warn("message partially delivered",
			zap.String("backend", backend),
			zap.Int("sent", i),
			zap.Int("chunks", len(chunks)),
			zap.Error(err))
		return nil
	}
	return nil
}
