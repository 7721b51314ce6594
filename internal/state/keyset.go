package state

import (
	"bytes"
	"sort"

	"github.com/gagliardetto/solana-go"
)

// KeySet is a sorted, duplicate-free list of keys. Order is byte order so
// the stored layout is deterministic.
type KeySet []solana.PublicKey

// NewKeySet sorts and deduplicates keys into a fresh set.
func NewKeySet(keys ...solana.PublicKey) KeySet {
	s := make(KeySet, len(keys))
	copy(s, keys)
	sort.Slice(s, func(i, j int) bool { return bytes.Compare(s[i][:], s[j][:]) < 0 })
	out := s[:0]
	for i, k := range s {
		if i > 0 && k == s[i-1] {
			continue
		}
		out = append(out, k)
	}
	return out
}

func (s KeySet) search(key solana.PublicKey) (int, bool) {
	i := sort.Search(len(s), func(i int) bool { return bytes.Compare(s[i][:], key[:]) >= 0 })
	return i, i < len(s) && s[i] == key
}

func (s KeySet) Contains(key solana.PublicKey) bool {
	_, ok := s.search(key)
	return ok
}

// Insert adds key at its sorted position. It returns false if key was already present.
func (s *KeySet) Insert(key solana.PublicKey) bool {
	i, ok := s.search(key)
	if ok {
		return false
	}
	*s = append(*s, solana.PublicKey{})
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = key
	return true
}

// Remove deletes key. It returns false if key was absent.
func (s *KeySet) Remove(key solana.PublicKey) bool {
	i, ok := s.search(key)
	if !ok {
		return false
	}
	*s = append((*s)[:i], (*s)[i+1:]...)
	return true
}

func (s KeySet) Len() int {
	return len(s)
}

// Sorted reports whether the set holds its invariant.
func (s KeySet) Sorted() bool {
	for i := 1; i < len(s); i++ {
		if bytes.Compare(s[i-1][:], s[i][:]) >= 0 {
			return false
		}
	}
	return true
}
