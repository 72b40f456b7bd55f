package pricing

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Destination struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// Advisory classifies the delivery message shown for a destination.
type Advisory int

const (
	AdvisoryFreeMetro Advisory = iota
	AdvisorySurcharge
	AdvisoryInternational
)

func (a Advisory) String() string {
	switch a {
	case AdvisoryFreeMetro:
		return "free_metro"
	case AdvisorySurcharge:
		return "surcharge"
	default:
		return "international"
	}
}

func (a Advisory) Message() string {
	switch a {
	case AdvisoryFreeMetro:
		return "Free delivery inside core metro cities."
	case AdvisorySurcharge:
		return "A delivery surcharge applies to this area; we will contact you to confirm."
	default:
		return "International delivery; we will contact you with a quote."
	}
}

func (a Advisory) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// Advise picks the advisory tier. An empty country is taken as domestic.
func (e *Engine) Advise(d Destination) Advisory {
	if d.Country != "" && fold(d.Country) != fold(e.domestic) {
		return AdvisoryInternational
	}
	city := fold(d.City)
	for _, m := range e.metro {
		if city != "" && city == fold(m) {
			return AdvisoryFreeMetro
		}
	}
	return AdvisorySurcharge
}

// fold makes "Hà Nội", "ha noi" and "HANOI" compare equal: strip accents,
// case-fold, drop spaces and punctuation.
func fold(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Map(func(r rune) rune {
			if r == 'đ' || r == 'Đ' {
				return 'd'
			}
			return r
		}),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = cases.Fold().String(out)
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, out)
}
