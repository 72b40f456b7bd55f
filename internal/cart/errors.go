package cart

import (
	"errors"
	"fmt"
)

var (
	ErrItemNotFound    = errors.New("item not in cart")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// StockExceededError rejects an add that would push a line past its stock
// ceiling. MaxAddable is how many more units the line can still take.
type StockExceededError struct {
	ProductID  string
	MaxAddable int
}

func (e *StockExceededError) Error() string {
	return fmt.Sprintf("only %d more of %s can be added", e.MaxAddable, e.ProductID)
}
