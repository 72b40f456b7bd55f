package orders

import (
	"fmt"
	"strings"
	"time"
)

type DateWindow string

const (
	WindowAll    DateWindow = "all"
	WindowToday  DateWindow = "today"
	Window7Days  DateWindow = "7days"
	Window30Days DateWindow = "30days"
)

func ParseDateWindow(s string) (DateWindow, error) {
	switch w := DateWindow(s); w {
	case "", WindowAll:
		return WindowAll, nil
	case WindowToday, Window7Days, Window30Days:
		return w, nil
	default:
		return "", fmt.Errorf("invalid date window %q", s)
	}
}

// Filter is a conjunction; zero fields match everything.
type Filter struct {
	Search        string
	Status        Status
	PaymentStatus PaymentStatus
	Window        DateWindow
}

func (f Filter) Match(o Order, now time.Time) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
		return false
	}
	if !f.inWindow(o.CreatedAt, now) {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return true
	}
	for _, field := range []string{o.ID, o.ShippingAddress.FullName, o.ShippingAddress.Phone, o.ShippingAddress.Email} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func (f Filter) inWindow(created, now time.Time) bool {
	switch f.Window {
	case WindowToday:
		y, m, d := now.Date()
		start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		return !created.Before(start)
	case Window7Days:
		return !created.Before(now.AddDate(0, 0, -7))
	case Window30Days:
		return !created.Before(now.AddDate(0, 0, -30))
	default:
		return true
	}
}

// Apply returns the orders matching f, keeping their order.
func Apply(orders []Order, f Filter, now time.Time) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if f.Match(o, now) {
			out = append(out, o)
		}
	}
	return out
}
