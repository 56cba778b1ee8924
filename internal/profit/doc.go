// Package profit computes realized trading profit.
//
// A sale's net profit is its gross value minus FIFO cost of goods,
// minus the sales taxes the wallet journal actually recorded for it,
// minus estimated broker fees on both the buy and sell side. Period
// reports replay the full transaction history in chronological order
// so the same window always produces the same figures.
package profit
