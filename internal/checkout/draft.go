package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/kv"
)

// Draft is what an unfinished checkout leaves behind for the next visit.
type Draft struct {
	Contact        ContactInfo `json:"contact"`
	DeliveryOption string      `json:"deliveryOption,omitempty"`
	Cart           []cart.Item `json:"cart,omitempty"`
	SavedAt        time.Time   `json:"savedAt"`
}

type DraftStore struct {
	kv  kv.Store
	key string
}

func NewDraftStore(s kv.Store, key string) *DraftStore {
	return &DraftStore{kv: s, key: key}
}

// Load reports false when there is no usable draft; a corrupt record counts
// as none.
func (d *DraftStore) Load(ctx context.Context) (Draft, bool) {
	raw, err := d.kv.Get(ctx, d.key)
	if err != nil {
		return Draft{}, false
	}
	var dr Draft
	if json.Unmarshal(raw, &dr) != nil {
		return Draft{}, false
	}
	return dr, true
}

func (d *DraftStore) Save(ctx context.Context, dr Draft) error {
	if dr.SavedAt.IsZero() {
		dr.SavedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(dr)
	if err != nil {
		return err
	}
	return d.kv.Set(ctx, d.key, raw)
}

func (d *DraftStore) Clear(ctx context.Context) error {
	if err := d.kv.Delete(ctx, d.key); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return err
	}
	return nil
}
