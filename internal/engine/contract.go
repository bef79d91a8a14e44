package engine

import (
	"reflect"

	"github.com/roach88/actionbus/internal/ir"
)

// ContractChecker decides whether data satisfies a contract.
type ContractChecker interface {
	Compatible(contract ir.Contract, data any) bool
}

// ContractOf returns the contract naming Go type T.
//
//	ContractOf[Order]()   // "engine.Order" style reflect type string
//	ContractOf[*Order]()  // "*engine.Order"
func ContractOf[T any]() ir.Contract {
	return ir.Contract(reflect.TypeFor[T]().String())
}

// TypeChecker is the default ContractChecker.
//
// Registered contracts match by assignability, so an interface contract
// accepts every implementation. Unregistered contracts match when the
// data's reflect type string equals the contract.
type TypeChecker struct {
	types map[ir.Contract]reflect.Type
}

// NewTypeChecker creates a checker with no registered contracts.
func NewTypeChecker() *TypeChecker {
	return &TypeChecker{types: make(map[ir.Contract]reflect.Type)}
}

// Register maps contract to t.
func (c *TypeChecker) Register(contract ir.Contract, t reflect.Type) {
	c.types[contract] = t
}

// RegisterContract registers T under ContractOf[T] and returns the
// contract.
func RegisterContract[T any](c *TypeChecker) ir.Contract {
	contract := ContractOf[T]()
	c.Register(contract, reflect.TypeFor[T]())
	return contract
}

// Compatible implements ContractChecker.
func (c *TypeChecker) Compatible(contract ir.Contract, data any) bool {
	if data == nil {
		return false
	}
	dt := reflect.TypeOf(data)
	if t, ok := c.types[contract]; ok {
		return dt.AssignableTo(t)
	}
	return dt.String() == string(contract)
}

// isObject reports whether data is object-like: a struct, pointer or map.
func isObject(data any) bool {
	if data == nil {
		return false
	}
	switch reflect.TypeOf(data).Kind() {
	case reflect.Struct, reflect.Pointer, reflect.Map:
		return true
	}
	return false
}

// isNilData reports whether data is nil or a typed nil pointer, map,
// slice or func.
func isNilData(data any) bool {
	if data == nil {
		return true
	}
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}
