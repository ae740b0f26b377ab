package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func rose() ProductSnapshot {
	return ProductSnapshot{ID: 7, Name: "Ramo de rosas", UnitPrice: 1000, Stock: 10}
}

func TestAddLineDerivedTotals(t *testing.T) {
	cart := NewCart()
	assert.True(t, cart.IsEmpty)

	cart.AddLine(rose(), 2)

	assert.False(t, cart.IsEmpty)
	assert.Len(t, cart.Items, 1)
	assert.Equal(t, int64(7), cart.Items[0].Product.ID)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Equal(t, 1000.0, cart.Items[0].UnitPrice)
	assert.Equal(t, 2000.0, cart.Items[0].LineTotal)
	assert.Equal(t, 2, cart.TotalItems)
	assert.Equal(t, 2000.0, cart.TotalPrice)
}

func TestAddLineMergesExistingProduct(t *testing.T) {
	cart := NewCart()
	cart.AddLine(rose(), 1)
	cart.AddLine(rose(), 2)

	assert.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, 3000.0, cart.TotalPrice)
}

func TestTotalsConsistentAfterAnyMutation(t *testing.T) {
	cart := NewCart()
	tulip := ProductSnapshot{ID: 9, Name: "Tulipanes", UnitPrice: 500}

	cart.AddLine(rose(), 2)
	cart.AddLine(tulip, 4)
	cart.SetQuantity(7, 5)
	cart.RemoveLine(9)

	wantItems := 0
	wantPrice := 0.0
	for _, it := range cart.Items {
		wantItems += it.Quantity
		wantPrice += it.LineTotal
	}
	assert.Equal(t, wantItems, cart.TotalItems)
	assert.Equal(t, wantPrice, cart.TotalPrice)
	assert.Equal(t, 5, cart.TotalItems)
	assert.Equal(t, 5000.0, cart.TotalPrice)
}

func TestSetQuantityUpdatesLineTotal(t *testing.T) {
	cart := NewCart()
	cart.AddLine(rose(), 2)

	cart.SetQuantity(7, 5)

	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.Equal(t, 5000.0, cart.Items[0].LineTotal)
}

func TestSetQuantityZeroRemovesLine(t *testing.T) {
	a := NewCart()
	a.AddLine(rose(), 2)
	a.SetQuantity(7, 0)

	b := NewCart()
	b.AddLine(rose(), 2)
	b.RemoveLine(7)

	assert.Equal(t, b, a)
	assert.True(t, a.IsEmpty)
}

func TestRemoveLineAbsentProductIsNoop(t *testing.T) {
	cart := NewCart()
	cart.AddLine(rose(), 2)
	before := cart.Clone()

	cart.RemoveLine(999)

	assert.Equal(t, before, cart)
}

func TestClear(t *testing.T) {
	cart := NewCart()
	cart.AddLine(rose(), 3)
	cart.Clear()

	assert.True(t, cart.IsEmpty)
	assert.Equal(t, 0, cart.TotalItems)
	assert.Equal(t, 0.0, cart.TotalPrice)
	assert.Empty(t, cart.Items)
}

func TestCloneIsIndependent(t *testing.T) {
	cart := NewCart()
	cart.AddLine(rose(), 2)

	clone := cart.Clone()
	clone.SetQuantity(7, 9)

	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Equal(t, 9, clone.Items[0].Quantity)
}
