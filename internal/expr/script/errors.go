package script

import "fmt"

var errUnterminatedString = fmt.Errorf("unterminated string literal")

func newLexError(c rune) error {
	return fmt.Errorf("unexpected character %q", c)
}
