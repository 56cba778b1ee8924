// Package undercut compares an owner's open market orders against the
// live regional order book.
//
// A sell order is undercut when another seller in the same region
// offers the same type cheaper; a buy order when another buyer bids
// higher. The detector reports the full status set plus the
// transitions since the previous evaluation, which is what drives
// notifications.
package undercut
