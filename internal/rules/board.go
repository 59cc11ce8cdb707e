package rules

import (
	"regexp"
	"strings"

	"backtester/internal/models"
)

// boardPattern maps a symbol pattern to a listing board. Narrow patterns
// must come before the broad main-board ones.
type boardPattern struct {
	re    *regexp.Regexp
	board models.Board
}

var boardPatterns = []boardPattern{
	{regexp.MustCompile(`^688\d{3}(\.[A-Z]{2})?$`), models.BoardGrowth},
	{regexp.MustCompile(`^30[01]\d{3}(\.[A-Z]{2})?$`), models.BoardGrowth},
	{regexp.MustCompile(`^(43|83|87)\d{4}(\.[A-Z]{2})?$`), models.BoardMicro},
	{regexp.MustCompile(`^6\d{5}(\.[A-Z]{2})?$`), models.BoardMain},
	{regexp.MustCompile(`^00[01]\d{3}(\.[A-Z]{2})?$`), models.BoardMain},
}

var specialNameRe = regexp.MustCompile(`S?\*?ST`)

// ClassifyBoard determines the listing board from the instrument symbol.
// Unrecognized symbols fall back to the main board.
func ClassifyBoard(symbol string) models.Board {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, p := range boardPatterns {
		if p.re.MatchString(symbol) {
			return p.board
		}
	}
	return models.BoardMain
}

// IsSpecialTreatment reports whether the instrument name marks it as a
// special-treatment stock, which trades under a tighter price limit.
func IsSpecialTreatment(name string) bool {
	if name == "" {
		return false
	}
	return specialNameRe.MatchString(strings.ToUpper(name))
}

// ResolveBoard classifies a symbol and applies the special-treatment
// override from the instrument name.
func ResolveBoard(symbol, name string) models.Board {
	board := ClassifyBoard(symbol)
	if IsSpecialTreatment(name) {
		return models.BoardSpecial
	}
	return board
}

// LimitPct returns the daily price-move limit fraction for a board.
func LimitPct(board models.Board) float64 {
	switch board {
	case models.BoardGrowth:
		return 0.20
	case models.BoardMicro:
		return 0.30
	case models.BoardSpecial:
		return 0.05
	default:
		return 0.10
	}
}
