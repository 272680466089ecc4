/*
Copyright 2025 The FBDAM Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package core

import (
	"errors"
	"fmt"
	"math"
)

// RequirementFloor is the smallest requirement amount a Domain holds. It keeps
// every Delivered/Requirement ratio finite.
const RequirementFloor = 1e-9

// ErrInvalidDomain is returned by NewDomain when the data violates a domain invariant.
var ErrInvalidDomain = errors.New("invalid domain")

// Item is a food item available for allocation.
type Item struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Unit string `json:"unit,omitempty"`
	// Stock is the donated quantity on hand.
	Stock float64 `json:"stock"`
	// Cost is the unit purchase cost. Zero when the item cannot be priced.
	Cost float64 `json:"cost"`
}

// Nutrient is a tracked nutrient.
type Nutrient struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Unit string `json:"unit,omitempty"`
}

// Household is an allocation recipient.
type Household struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	// Weight is the fair-share weight w_h used as the proportional allocation target.
	Weight float64 `json:"fairshare_weight"`
}

// NutrientContent is the quantity of a nutrient in one unit of an item.
type NutrientContent struct {
	ItemID     string  `json:"item_id"`
	NutrientID string  `json:"nutrient_id"`
	Quantity   float64 `json:"qty_per_unit"`
}

// Requirement is the amount of a nutrient a household needs.
type Requirement struct {
	HouseholdID string  `json:"household_id"`
	NutrientID  string  `json:"nutrient_id"`
	Amount      float64 `json:"requirement"`
}

// Bound restricts the allocation of an item to a household.
type Bound struct {
	ItemID      string  `json:"item_id"`
	HouseholdID string  `json:"household_id"`
	Lower       float64 `json:"lower"`
	// Upper is nil when the pair has no upper bound.
	Upper *float64 `json:"upper,omitempty"`
}

// Data is the raw input accepted by NewDomain.
type Data struct {
	Items        []Item
	Nutrients    []Nutrient
	Households   []Household
	Contents     []NutrientContent
	Requirements []Requirement
	Bounds       []Bound
}

type pair struct{ a, b string }

// Domain is the validated, read-only index over a Data set.
type Domain struct {
	items      []Item
	nutrients  []Nutrient
	households []Household

	itemIdx      map[string]int
	nutrientIdx  map[string]int
	householdIdx map[string]int

	content      map[pair]float64 // (item, nutrient)
	requirements map[pair]float64 // (household, nutrient)
	bounds       map[pair]Bound   // (item, household)
}

// NewDomain validates data and builds a Domain. Requirements are floored at
// RequirementFloor here and nowhere else.
func NewDomain(data Data) (*Domain, error) {
	d := &Domain{
		itemIdx:      make(map[string]int, len(data.Items)),
		nutrientIdx:  make(map[string]int, len(data.Nutrients)),
		householdIdx: make(map[string]int, len(data.Households)),
		content:      make(map[pair]float64, len(data.Contents)),
		requirements: make(map[pair]float64, len(data.Requirements)),
		bounds:       make(map[pair]Bound, len(data.Bounds)),
	}

	if len(data.Items) == 0 || len(data.Nutrients) == 0 || len(data.Households) == 0 {
		return nil, fmt.Errorf("%w: items, nutrients and households must all be non-empty (got %d, %d, %d)",
			ErrInvalidDomain, len(data.Items), len(data.Nutrients), len(data.Households))
	}

	for _, it := range data.Items {
		if err := checkID("item", it.ID, d.itemIdx); err != nil {
			return nil, err
		}
		if !nonNegative(it.Stock) {
			return nil, fmt.Errorf("%w: item %q: stock must be >= 0, got %v", ErrInvalidDomain, it.ID, it.Stock)
		}
		if !nonNegative(it.Cost) {
			return nil, fmt.Errorf("%w: item %q: cost must be >= 0, got %v", ErrInvalidDomain, it.ID, it.Cost)
		}
		d.itemIdx[it.ID] = len(d.items)
		d.items = append(d.items, it)
	}
	for _, n := range data.Nutrients {
		if err := checkID("nutrient", n.ID, d.nutrientIdx); err != nil {
			return nil, err
		}
		d.nutrientIdx[n.ID] = len(d.nutrients)
		d.nutrients = append(d.nutrients, n)
	}
	for _, h := range data.Households {
		if err := checkID("household", h.ID, d.householdIdx); err != nil {
			return nil, err
		}
		if !nonNegative(h.Weight) {
			return nil, fmt.Errorf("%w: household %q: fairshare_weight must be >= 0, got %v",
				ErrInvalidDomain, h.ID, h.Weight)
		}
		d.householdIdx[h.ID] = len(d.households)
		d.households = append(d.households, h)
	}

	for _, c := range data.Contents {
		if err := d.checkRefs("nutrient content", c.ItemID, d.itemIdx, "item", c.NutrientID, d.nutrientIdx, "nutrient"); err != nil {
			return nil, err
		}
		if !nonNegative(c.Quantity) {
			return nil, fmt.Errorf("%w: nutrient content (%s, %s): quantity must be >= 0, got %v",
				ErrInvalidDomain, c.ItemID, c.NutrientID, c.Quantity)
		}
		k := pair{c.ItemID, c.NutrientID}
		if _, dup := d.content[k]; dup {
			return nil, fmt.Errorf("%w: duplicate nutrient content (%s, %s)", ErrInvalidDomain, c.ItemID, c.NutrientID)
		}
		d.content[k] = c.Quantity
	}

	for _, r := range data.Requirements {
		if err := d.checkRefs("requirement", r.HouseholdID, d.householdIdx, "household", r.NutrientID, d.nutrientIdx, "nutrient"); err != nil {
			return nil, err
		}
		if !nonNegative(r.Amount) {
			return nil, fmt.Errorf("%w: requirement (%s, %s): amount must be >= 0, got %v",
				ErrInvalidDomain, r.HouseholdID, r.NutrientID, r.Amount)
		}
		k := pair{r.HouseholdID, r.NutrientID}
		if _, dup := d.requirements[k]; dup {
			return nil, fmt.Errorf("%w: duplicate requirement (%s, %s)", ErrInvalidDomain, r.HouseholdID, r.NutrientID)
		}
		d.requirements[k] = math.Max(r.Amount, RequirementFloor)
	}
	for _, h := range d.households {
		for _, n := range d.nutrients {
			if _, ok := d.requirements[pair{h.ID, n.ID}]; !ok {
				return nil, fmt.Errorf("%w: missing requirement for household %q and nutrient %q",
					ErrInvalidDomain, h.ID, n.ID)
			}
		}
	}

	for _, b := range data.Bounds {
		if err := d.checkRefs("bound", b.ItemID, d.itemIdx, "item", b.HouseholdID, d.householdIdx, "household"); err != nil {
			return nil, err
		}
		if !nonNegative(b.Lower) {
			return nil, fmt.Errorf("%w: bound (%s, %s): lower must be >= 0, got %v",
				ErrInvalidDomain, b.ItemID, b.HouseholdID, b.Lower)
		}
		if b.Upper != nil && (math.IsNaN(*b.Upper) || *b.Upper < b.Lower) {
			return nil, fmt.Errorf("%w: bound (%s, %s): upper %v is below lower %v",
				ErrInvalidDomain, b.ItemID, b.HouseholdID, *b.Upper, b.Lower)
		}
		k := pair{b.ItemID, b.HouseholdID}
		if _, dup := d.bounds[k]; dup {
			return nil, fmt.Errorf("%w: duplicate bound (%s, %s)", ErrInvalidDomain, b.ItemID, b.HouseholdID)
		}
		if b.Upper != nil {
			u := *b.Upper
			b.Upper = &u
		}
		d.bounds[k] = b
	}

	return d, nil
}

func checkID(kind, id string, seen map[string]int) error {
	if id == "" {
		return fmt.Errorf("%w: %s with empty id", ErrInvalidDomain, kind)
	}
	if _, dup := seen[id]; dup {
		return fmt.Errorf("%w: duplicate %s id %q", ErrInvalidDomain, kind, id)
	}
	return nil
}

func (d *Domain) checkRefs(record, a string, aIdx map[string]int, aKind, b string, bIdx map[string]int, bKind string) error {
	if _, ok := aIdx[a]; !ok {
		return fmt.Errorf("%w: %s references unknown %s %q", ErrInvalidDomain, record, aKind, a)
	}
	if _, ok := bIdx[b]; !ok {
		return fmt.Errorf("%w: %s references unknown %s %q", ErrInvalidDomain, record, bKind, b)
	}
	return nil
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}

// Items returns the items in load order.
func (d *Domain) Items() []Item {
	return append([]Item(nil), d.items...)
}

// Nutrients returns the nutrients in load order.
func (d *Domain) Nutrients() []Nutrient {
	return append([]Nutrient(nil), d.nutrients...)
}

// Households returns the households in load order.
func (d *Domain) Households() []Household {
	return append([]Household(nil), d.households...)
}

// ItemIDs returns item identifiers in load order.
func (d *Domain) ItemIDs() []string {
	ids := make([]string, len(d.items))
	for i, it := range d.items {
		ids[i] = it.ID
	}
	return ids
}

// NutrientIDs returns nutrient identifiers in load order.
func (d *Domain) NutrientIDs() []string {
	ids := make([]string, len(d.nutrients))
	for i, n := range d.nutrients {
		ids[i] = n.ID
	}
	return ids
}

// HouseholdIDs returns household identifiers in load order.
func (d *Domain) HouseholdIDs() []string {
	ids := make([]string, len(d.households))
	for i, h := range d.households {
		ids[i] = h.ID
	}
	return ids
}

// Item looks up an item by id.
func (d *Domain) Item(id string) (Item, bool) {
	i, ok := d.itemIdx[id]
	if !ok {
		return Item{}, false
	}
	return d.items[i], true
}

// Nutrient looks up a nutrient by id.
func (d *Domain) Nutrient(id string) (Nutrient, bool) {
	i, ok := d.nutrientIdx[id]
	if !ok {
		return Nutrient{}, false
	}
	return d.nutrients[i], true
}

// Household looks up a household by id.
func (d *Domain) Household(id string) (Household, bool) {
	i, ok := d.householdIdx[id]
	if !ok {
		return Household{}, false
	}
	return d.households[i], true
}

// Content returns the nutrient content per unit of item. Missing pairs are zero.
func (d *Domain) Content(itemID, nutrientID string) float64 {
	return d.content[pair{itemID, nutrientID}]
}

// Requirement returns the floored requirement of household for nutrient.
// Every (household, nutrient) pair of a Domain has a requirement.
func (d *Domain) Requirement(householdID, nutrientID string) float64 {
	return d.requirements[pair{householdID, nutrientID}]
}

// Bound returns the declared bound for (item, household), if any.
func (d *Domain) Bound(itemID, householdID string) (Bound, bool) {
	b, ok := d.bounds[pair{itemID, householdID}]
	if ok && b.Upper != nil {
		u := *b.Upper
		b.Upper = &u
	}
	return b, ok
}

// TotalStock is the sum of donated stock over all items.
func (d *Domain) TotalStock() float64 {
	var s float64
	for _, it := range d.items {
		s += it.Stock
	}
	return s
}

// Cardinality reports the size of each index set.
type Cardinality struct {
	Items      int `json:"items"`
	Nutrients  int `json:"nutrients"`
	Households int `json:"households"`
}

// Cardinality returns the number of items, nutrients and households.
func (d *Domain) Cardinality() Cardinality {
	return Cardinality{Items: len(d.items), Nutrients: len(d.nutrients), Households: len(d.households)}
}
