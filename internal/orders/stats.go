package orders

import "github.com/shopspring/decimal"

type Stats struct {
	Total    int             `json:"total"`
	ByStatus map[Status]int  `json:"byStatus"`
	Revenue  decimal.Decimal `json:"revenue"`
}

func (s Stats) Count(st Status) int { return s.ByStatus[st] }

// ComputeStats aggregates from scratch. Revenue only counts orders that are
// both delivered and paid.
func ComputeStats(orders []Order) Stats {
	s := Stats{
		Total:    len(orders),
		ByStatus: make(map[Status]int, len(Statuses)),
		Revenue:  decimal.Zero,
	}
	for _, st := range Statuses {
		s.ByStatus[st] = 0
	}
	for _, o := range orders {
		s.ByStatus[o.Status]++
		if o.Status == StatusDelivered && o.PaymentStatus == PaymentPaid {
			s.Revenue = s.Revenue.Add(o.Total)
		}
	}
	return s
}
