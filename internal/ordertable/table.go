// Package ordertable keeps the admin order table's view state: which rows
// are expanded, which are selected and which one the cursor is over. It never
// touches the orders themselves.
package ordertable

import (
	"sync"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

// Row is one rendered table row. Expanded rows show the items, address and
// payment breakdown that Order already carries.
type Row struct {
	orders.Order
	Expanded bool `json:"expanded"`
	Selected bool `json:"selected"`
	Hovered  bool `json:"hovered"`
}

type Table struct {
	mu       sync.Mutex
	expanded map[string]bool
	selected map[string]bool
	hover    string
}

func New() *Table {
	return &Table{
		expanded: map[string]bool{},
		selected: map[string]bool{},
	}
}

func (t *Table) ToggleExpand(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return toggle(t.expanded, id)
}

func (t *Table) ToggleSelect(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return toggle(t.selected, id)
}

// SelectAll works on the visible (filtered) rows only. When every visible row
// is already selected they are all deselected, otherwise all are selected.
// Selections outside visible are left alone.
func (t *Table) SelectAll(visible []orders.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()

	all := len(visible) > 0
	for _, o := range visible {
		if !t.selected[o.ID] {
			all = false
			break
		}
	}
	for _, o := range visible {
		if all {
			delete(t.selected, o.ID)
		} else {
			t.selected[o.ID] = true
		}
	}
}

// Selected returns the selected ids in the order they appear in among.
func (t *Table) Selected(among []orders.Order) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, o := range among {
		if t.selected[o.ID] {
			out = append(out, o.ID)
		}
	}
	return out
}

// Hover moves the cursor; an empty id clears it.
func (t *Table) Hover(id string) {
	t.mu.Lock()
	t.hover = id
	t.mu.Unlock()
}

func (t *Table) Rows(visible []orders.Order) []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := make([]Row, len(visible))
	for i, o := range visible {
		rows[i] = Row{
			Order:    o,
			Expanded: t.expanded[o.ID],
			Selected: t.selected[o.ID],
			Hovered:  t.hover != "" && t.hover == o.ID,
		}
	}
	return rows
}

// Prune forgets state for orders that no longer exist, e.g. after a delete.
func (t *Table) Prune(existing []orders.Order) {
	keep := make(map[string]bool, len(existing))
	for _, o := range existing {
		keep[o.ID] = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.expanded {
		if !keep[id] {
			delete(t.expanded, id)
		}
	}
	for id := range t.selected {
		if !keep[id] {
			delete(t.selected, id)
		}
	}
	if !keep[t.hover] {
		t.hover = ""
	}
}

func toggle(set map[string]bool, id string) bool {
	if set[id] {
		delete(set, id)
		return false
	}
	set[id] = true
	return true
}
