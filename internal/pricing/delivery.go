package pricing

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var ErrUnknownDeliveryOption = errors.New("unknown delivery option")

// DeliveryOption is a shipping tier. Only the default tier carries a
// free-shipping threshold.
type DeliveryOption struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	Fee                   decimal.Decimal `json:"fee"`
	LeadTime              string          `json:"leadTime"`
	FreeShippingThreshold decimal.Decimal `json:"freeShippingThreshold"`
	Default               bool            `json:"default"`
}

type Catalog struct {
	options []DeliveryOption
	byID    map[string]int
	def     int
}

func NewCatalog(opts []DeliveryOption) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(opts)), def: -1}
	for i, o := range opts {
		if o.ID == "" {
			return nil, fmt.Errorf("delivery option %d: missing id", i)
		}
		if _, dup := c.byID[o.ID]; dup {
			return nil, fmt.Errorf("delivery option %q: duplicate id", o.ID)
		}
		if o.Fee.IsNegative() {
			return nil, fmt.Errorf("delivery option %q: negative fee", o.ID)
		}
		if o.Default {
			if c.def >= 0 {
				return nil, fmt.Errorf("delivery option %q: second default tier", o.ID)
			}
			c.def = i
		} else if !o.FreeShippingThreshold.IsZero() {
			return nil, fmt.Errorf("delivery option %q: only the default tier may have a free-shipping threshold", o.ID)
		}
		c.byID[o.ID] = i
		c.options = append(c.options, o)
	}
	if c.def < 0 {
		return nil, errors.New("delivery catalog has no default tier")
	}
	return c, nil
}

func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]DeliveryOption{
		{
			ID:                    "standard",
			Name:                  "Standard delivery",
			Fee:                   decimal.NewFromInt(30000),
			LeadTime:              "3-5 days",
			FreeShippingThreshold: decimal.NewFromInt(500000),
			Default:               true,
		},
		{ID: "express", Name: "Express delivery", Fee: decimal.NewFromInt(50000), LeadTime: "1-2 days"},
		{ID: "same_day", Name: "Same-day delivery", Fee: decimal.NewFromInt(80000), LeadTime: "within the day"},
	})
	if err != nil {
		panic(err)
	}
	return c
}

type yamlOption struct {
	ID                    string `yaml:"id"`
	Name                  string `yaml:"name"`
	Fee                   string `yaml:"fee"`
	LeadTime              string `yaml:"lead_time"`
	FreeShippingThreshold string `yaml:"free_shipping_threshold"`
	Default               bool   `yaml:"default"`
}

// ParseCatalog reads a YAML document of the form
//
//	options:
//	  - id: standard
//	    fee: "30000"
//	    free_shipping_threshold: "500000"
//	    default: true
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Options []yamlOption `yaml:"options"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse delivery catalog: %w", err)
	}
	opts := make([]DeliveryOption, 0, len(doc.Options))
	for _, y := range doc.Options {
		fee, err := amount(y.Fee)
		if err != nil {
			return nil, fmt.Errorf("delivery option %q fee: %w", y.ID, err)
		}
		threshold, err := amount(y.FreeShippingThreshold)
		if err != nil {
			return nil, fmt.Errorf("delivery option %q threshold: %w", y.ID, err)
		}
		opts = append(opts, DeliveryOption{
			ID:                    y.ID,
			Name:                  y.Name,
			Fee:                   fee,
			LeadTime:              y.LeadTime,
			FreeShippingThreshold: threshold,
			Default:               y.Default,
		})
	}
	return NewCatalog(opts)
}

func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(b)
}

func amount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func (c *Catalog) Options() []DeliveryOption {
	out := make([]DeliveryOption, len(c.options))
	copy(out, c.options)
	return out
}

func (c *Catalog) Default() DeliveryOption { return c.options[c.def] }

// Lookup resolves id; the empty id means the default tier.
func (c *Catalog) Lookup(id string) (DeliveryOption, error) {
	if id == "" {
		return c.Default(), nil
	}
	i, ok := c.byID[id]
	if !ok {
		return DeliveryOption{}, fmt.Errorf("%w: %q", ErrUnknownDeliveryOption, id)
	}
	return c.options[i], nil
}
