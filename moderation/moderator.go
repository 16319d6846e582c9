package moderation

import (
	"log/slog"
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
)

// PhoneNumber is reported for every masked phone number.
const PhoneNumber = "phone_number"

// minPhoneDigits is the shortest digit run treated as a phone number.
// Prices, postcodes and door codes stay below it.
const minPhoneDigits = 9

// Moderator masks blacklisted words and phone numbers in listing messages.
type Moderator struct {
	matcher *goahocorasick.Machine
	mask    rune
	log     *slog.Logger
}

// folded is a message reduced to matchable runes, each pointing back to its position in the original.
type folded struct {
	runes []rune
	at    []int
}

// NewModerator builds the matcher from the blacklist. Entries that fold to nothing are skipped.
func NewModerator(blacklist []string, mask rune, log *slog.Logger) (*Moderator, error) {
	patterns := make([][]rune, 0, len(blacklist))
	for _, entry := range blacklist {
		if f := fold([]rune(entry)); len(f.runes) > 0 {
			patterns = append(patterns, f.runes)
		}
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	log.Debug("Moderator ready", "patterns", len(patterns))
	return &Moderator{matcher: m, mask: mask, log: log}, nil
}

// Censor masks phone numbers, then blacklisted words, keeping every other rune in place.
// It returns the masked text and the hits: matched words in order of appearance,
// followed by one PhoneNumber per masked number.
func (m *Moderator) Censor(text string) (string, []string) {
	runes := []rune(text)
	phones := m.maskPhoneNumbers(runes)

	hits := m.maskWords(runes)
	for range phones {
		hits = append(hits, PhoneNumber)
	}
	if len(hits) == 0 {
		return text, nil
	}
	m.log.Debug("Message censored", "hits", len(hits), "phones", phones, "lang", DetectLanguage(text))
	return string(runes), hits
}

func (m *Moderator) maskWords(runes []rune) []string {
	f := fold(runes)
	if len(f.runes) == 0 {
		return nil
	}

	var words []string
	for _, hit := range m.matcher.MultiPatternSearch(f.runes, false) {
		end := hit.Pos + len(hit.Word)
		if hit.Pos < 0 || end > len(f.at) {
			continue
		}
		for i := f.at[hit.Pos]; i <= f.at[end-1]; i++ {
			runes[i] = m.mask
		}
		words = append(words, string(hit.Word))
	}
	return words
}

// maskPhoneNumbers hides digit runs long enough to be a phone number and returns how many it hid.
// An optional leading '+' and single spaces, dots or dashes between digits are part of the number.
func (m *Moderator) maskPhoneNumbers(runes []rune) int {
	count := 0
	for i := 0; i < len(runes); {
		start := i
		if runes[i] == '+' && i+1 < len(runes) && unicode.IsDigit(runes[i+1]) {
			i++
		}
		if !unicode.IsDigit(runes[i]) {
			i = start + 1
			continue
		}

		digits, last := 0, i
		for j := i; j < len(runes); j++ {
			if unicode.IsDigit(runes[j]) {
				digits++
				last = j
				continue
			}
			if isPhoneSeparator(runes[j]) && j+1 < len(runes) && unicode.IsDigit(runes[j+1]) {
				continue
			}
			break
		}

		if digits >= minPhoneDigits {
			for k := start; k <= last; k++ {
				runes[k] = m.mask
			}
			count++
		}
		i = last + 1
	}
	return count
}

func isPhoneSeparator(r rune) bool {
	return r == ' ' || r == '.' || r == '-'
}

// DetectLanguage returns the ISO 639-1 code of the text, empty when unsure.
func DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

// fold lowercases, undoes leet substitutions and drops separators.
func fold(runes []rune) folded {
	f := folded{runes: make([]rune, 0, len(runes)), at: make([]int, 0, len(runes))}
	for i, r := range runes {
		r = unleet(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		f.runes = append(f.runes, unicode.ToLower(r))
		f.at = append(f.at, i)
	}
	return f
}

func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}
