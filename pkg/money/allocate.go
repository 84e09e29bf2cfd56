package money

import (
	"math/big"
	"sort"
)

// Allocate splits amount across weights so that the parts sum exactly to
// amount. Leftover cents go to the largest fractional remainders, ties to the
// lower index. Zero total weight splits evenly.
func Allocate(amount Cents, weights []Cents) []Cents {
	if len(weights) == 0 {
		return nil
	}
	allocations := make([]Cents, len(weights))
	if amount == 0 {
		return allocations
	}

	neg := amount < 0
	total := new(big.Int)
	for _, w := range weights {
		if w > 0 {
			total.Add(total, big.NewInt(int64(w)))
		}
	}
	abs := int64(amount)
	if neg {
		abs = -abs
	}

	if total.Sign() == 0 {
		n := int64(len(weights))
		base := abs / n
		remainder := abs % n
		for i := range weights {
			allocations[i] = Cents(base)
			if remainder > 0 {
				allocations[i]++
				remainder--
			}
		}
		return negateIf(allocations, neg)
	}

	type remainderPair struct {
		idx       int
		remainder *big.Int
	}
	pairs := make([]remainderPair, len(weights))
	distributed := int64(0)
	amt := big.NewInt(abs)
	for i, w := range weights {
		if w < 0 {
			w = 0
		}
		num := new(big.Int).Mul(amt, big.NewInt(int64(w)))
		share, rem := new(big.Int).QuoRem(num, total, new(big.Int))
		allocations[i] = Cents(share.Int64())
		distributed += share.Int64()
		pairs[i] = remainderPair{idx: i, remainder: rem}
	}

	left := abs - distributed
	if left > 0 {
		sort.SliceStable(pairs, func(i, j int) bool {
			c := pairs[i].remainder.Cmp(pairs[j].remainder)
			if c == 0 {
				return pairs[i].idx < pairs[j].idx
			}
			return c > 0
		})
		for _, p := range pairs {
			if left == 0 {
				break
			}
			allocations[p.idx]++
			left--
		}
	}
	return negateIf(allocations, neg)
}

func negateIf(values []Cents, neg bool) []Cents {
	if !neg {
		return values
	}
	for i := range values {
		values[i] = -values[i]
	}
	return values
}
