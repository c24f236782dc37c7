package collector

import (
	"sort"

	"github.com/bscott/mailfetch/internal/mailparse"
	"github.com/bscott/mailfetch/internal/structure"
)

// entry tracks one requested message while its attributes and body
// arrive independently.
type entry struct {
	seq       uint32
	uid       uint32
	structure structure.Part

	identified bool
	received   bool
	failed     bool

	raw []byte
	msg *mailparse.Message
}

func (e *entry) complete() bool {
	return e.identified && e.msg != nil
}

func (e *entry) settled() bool {
	return e.failed || e.complete()
}

// join correlates attribute and body events by sequence number. It is
// owned by a single goroutine and is not safe for concurrent use.
type join struct {
	entries map[uint32]*entry
	order   []uint32
	settled int
}

func newJoin(ids []uint32) *join {
	j := &join{entries: make(map[uint32]*entry, len(ids))}
	for _, id := range ids {
		if _, ok := j.entries[id]; ok {
			continue
		}
		j.entries[id] = &entry{seq: id}
		j.order = append(j.order, id)
	}
	sort.Slice(j.order, func(a, b int) bool { return j.order[a] < j.order[b] })
	return j
}

// identify records the attributes of seq. It reports false for sequence
// numbers that were not requested or were already identified.
func (j *join) identify(seq, uid uint32, part structure.Part) bool {
	e, ok := j.entries[seq]
	if !ok || e.identified || e.failed {
		return false
	}
	e.identified = true
	e.uid = uid
	e.structure = part
	j.update(e, false)
	return true
}

// receive marks the body of seq as arrived. It reports true only the
// first time, so each body is parsed once.
func (j *join) receive(seq uint32) bool {
	e, ok := j.entries[seq]
	if !ok || e.received || e.failed {
		return false
	}
	e.received = true
	return true
}

func (j *join) parsed(seq uint32, raw []byte, msg *mailparse.Message) {
	e, ok := j.entries[seq]
	if !ok || e.failed {
		return
	}
	was := e.settled()
	e.raw = raw
	e.msg = msg
	j.update(e, was)
}

func (j *join) fail(seq uint32) {
	e, ok := j.entries[seq]
	if !ok || e.failed {
		return
	}
	was := e.settled()
	e.failed = true
	j.update(e, was)
}

func (j *join) update(e *entry, wasSettled bool) {
	if !wasSettled && e.settled() {
		j.settled++
	}
}

func (j *join) expected() int {
	return len(j.order)
}

func (j *join) done() bool {
	return j.settled == len(j.order)
}

// completed returns the entries with both identity and body, in ascending
// sequence order.
func (j *join) completed() []*entry {
	var out []*entry
	for _, seq := range j.order {
		if e := j.entries[seq]; e.complete() {
			out = append(out, e)
		}
	}
	return out
}

// pending returns the sequence numbers that have not settled.
func (j *join) pending() []uint32 {
	var out []uint32
	for _, seq := range j.order {
		if !j.entries[seq].settled() {
			out = append(out, seq)
		}
	}
	return out
}
