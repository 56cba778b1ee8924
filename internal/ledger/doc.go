// Package ledger tracks purchase lots and computes cost-of-goods-sold
// with first-in-first-out consumption.
//
// Buy transactions open lots; sales drain the oldest lots for the same
// owner and type first. A sale larger than the open lots can cover has
// an indeterminate cost basis: the lots still drain, but the caller is
// told the figure is incomplete rather than handed a fabricated one.
package ledger
