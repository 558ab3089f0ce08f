package bb84

import "github.com/alan-christopher/bb84sim/bb84/bitmap"

// Sift keeps the transmissions whose sender and receiver bases agree. It
// returns both parties' bits at those positions, in their original order,
// together with the positions themselves. All four inputs must be the same
// size.
func Sift(senderBits, senderBases, receiverBases, receiverBits bitmap.Dense) (sender, receiver bitmap.Dense, idx []int) {
	mask := bitmap.XNor(senderBases, receiverBases)
	return bitmap.Select(senderBits, mask), bitmap.Select(receiverBits, mask), bitmap.Indices(mask)
}
