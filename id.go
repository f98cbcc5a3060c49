package dmc

import "github.com/xraph/dmc/id"

// ID is the primary identifier type for all market entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// BillID identifies a bill.
type BillID = id.BillID

// OrderID identifies an order and its challenge.
type OrderID = id.OrderID
