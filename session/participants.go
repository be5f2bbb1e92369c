package session

import "slices"

// participantSet is the set of remote uids present in the channel.
type participantSet map[uint32]struct{}

// add inserts uid and reports whether it was absent.
func (p participantSet) add(uid uint32) bool {
	if _, ok := p[uid]; ok {
		return false
	}
	p[uid] = struct{}{}
	return true
}

// remove deletes uid and reports whether it was present.
func (p participantSet) remove(uid uint32) bool {
	if _, ok := p[uid]; !ok {
		return false
	}
	delete(p, uid)
	return true
}

func (p participantSet) has(uid uint32) bool {
	_, ok := p[uid]
	return ok
}

// sorted returns the uids in ascending order.
func (p participantSet) sorted() []uint32 {
	out := make([]uint32, 0, len(p))
	for uid := range p {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out
}
