// Package tokenizer maps phoneme strings to the integer symbol ids consumed
// by the acoustic model.
package tokenizer

import (
	"errors"
	"strings"
)

// ErrNoTokens is returned when none of the input code points belong to the
// symbol table.
var ErrNoTokens = errors.New("no known symbols in phoneme string")

// PadID is the index of the pad symbol. It doubles as the start and end
// sentinel that wraps every encoded sequence.
const PadID int64 = 0

const (
	pad         = "$"
	punctuation = ";:,.!?¡¿—…\"«»\"\" "
	letters     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	lettersIPA  = "ɑɐɒæɓʙβɔɕçɗɖðʤəɘɚɛɜɝɞɟʄɡɠɢʛɦɧħɥʜɨɪʝɭɬɫɮʟɱɯɰŋɳɲɴøɵɸθœɶʘɹɺɾɻʀʁɽʂʃʈʧʉʊʋⱱʌɣɤʍχʎʏʑʐʒʔʡʕʢǀǁǂǃˈˌːˑʼʴʰʱʲʷˠˤ˞↓↑→↗↘'\u0329'ᵻ"
)

// Tokenizer encodes phoneme strings into symbol ids.
type Tokenizer interface {
	// Encode maps phonemes to ids wrapped in start/end sentinels.
	Encode(phonemes string) ([]int64, error)
}

// SymbolTable is the fixed symbol-to-index mapping of the model vocabulary.
type SymbolTable struct {
	symbols []rune
	index   map[rune]int64
}

var defaultTable = newSymbolTable()

// Default returns the shared symbol table. It is immutable and safe for
// concurrent use.
func Default() *SymbolTable {
	return defaultTable
}

func newSymbolTable() *SymbolTable {
	var symbols []rune
	for _, part := range []string{pad, punctuation, letters, lettersIPA} {
		symbols = append(symbols, []rune(part)...)
	}

	// Repeated symbols resolve to their last position.
	index := make(map[rune]int64, len(symbols))
	for i, r := range symbols {
		index[r] = int64(i)
	}

	return &SymbolTable{symbols: symbols, index: index}
}

// Encode maps each code point of phonemes to its symbol id, silently
// dropping code points outside the table, and wraps the result in PadID
// sentinels.
func (t *SymbolTable) Encode(phonemes string) ([]int64, error) {
	ids := make([]int64, 0, len(phonemes)+2)
	ids = append(ids, PadID)
	for _, r := range phonemes {
		if id, ok := t.index[r]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 1 {
		return nil, ErrNoTokens
	}

	return append(ids, PadID), nil
}

// ID returns the symbol id for r.
func (t *SymbolTable) ID(r rune) (int64, bool) {
	id, ok := t.index[r]
	return id, ok
}

// Len returns the number of positions in the table, duplicates included.
func (t *SymbolTable) Len() int {
	return len(t.symbols)
}

// Symbols returns the table in index order.
func (t *SymbolTable) Symbols() string {
	var b strings.Builder
	for _, r := range t.symbols {
		b.WriteRune(r)
	}

	return b.String()
}

// Unknown returns the distinct code points of s that the table cannot map,
// in first-seen order.
func (t *SymbolTable) Unknown(s string) []rune {
	var out []rune
	seen := make(map[rune]bool)
	for _, r := range s {
		if _, ok := t.index[r]; ok || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}

	return out
}
