package mongora

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testOrder struct {
	ID       string       `bson:"_id"`
	Status   string       `bson:"status"`
	Quantity int          `bson:"quantity"`
	Paid     bool         `bson:"paid"`
	Items    []string     `bson:"items"`
	Customer testCustomer `bson:"customer"`
}

type testCustomer struct {
	Name string `bson:"name"`
	City string `bson:"city"`
}

func TestFieldFromStruct_ScalarKinds(t *testing.T) {
	s := FieldFromStruct[testOrder]()
	assert.Equal(t, KindString, s.Lookup("status"))
	assert.Equal(t, KindNumber, s.Lookup("quantity"))
	assert.Equal(t, KindBool, s.Lookup("paid"))
	assert.Equal(t, KindArray, s.Lookup("items"))
}

func TestFieldFromStruct_NestedObject(t *testing.T) {
	s := FieldFromStruct[testOrder]()
	assert.Equal(t, KindObject, s.Lookup("customer"))
	assert.Equal(t, KindString, s.Lookup("customer.name"))
	assert.Equal(t, KindString, s.Lookup("customer.city"))
}

func TestFieldFromStruct_IsCached(t *testing.T) {
	a := FieldFromStruct[testOrder]()
	b := FieldFromStruct[testOrder]()
	assert.Equal(t, a, b)
}

func TestSchema_LookupUnknown(t *testing.T) {
	var s Schema
	assert.Equal(t, KindUnknown, s.Lookup("anything"))

	s2 := Schema{"status": KindString}
	assert.Equal(t, KindUnknown, s2.Lookup("missing"))
}
