// Package validation runs batch key validation sessions: one streamed
// validation run at a time, from start to an acknowledged terminal state.
package validation

import (
	"strconv"
	"strings"
)

// KeyID identifies one managed API key. It is assigned by the server and never interpreted.
type KeyID int64

// ParseKeyIDs parses a comma separated id list such as "1,2,3".
func ParseKeyIDs(s string) ([]KeyID, error) {
	var ids []KeyID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, KeyID(n))
	}
	return ids, nil
}

// Request is the set of keys submitted together for one session.
type Request struct {
	ids []KeyID
}

// NewRequest builds a request, dropping duplicate ids but keeping first-seen order.
func NewRequest(ids ...KeyID) Request {
	seen := make(map[KeyID]struct{}, len(ids))
	out := make([]KeyID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return Request{ids: out}
}

// IDs returns a copy of the requested ids.
func (r Request) IDs() []KeyID {
	out := make([]KeyID, len(r.ids))
	copy(out, r.ids)
	return out
}

// Len returns the number of ids in the request.
func (r Request) Len() int { return len(r.ids) }

// Empty reports whether the request has no ids.
func (r Request) Empty() bool { return len(r.ids) == 0 }

// Join renders the ids as the comma separated list used on the wire.
func (r Request) Join() string {
	var b strings.Builder
	for i, id := range r.ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(int64(id), 10))
	}
	return b.String()
}

// encodedSeparator is the size of a comma once query-escaped.
const encodedSeparator = len("%2C")

// Chunks splits the request so that each part's encoded query parameter stays
// within maxBytes. A single id always forms a chunk on its own, whatever its size.
// maxBytes <= 0 disables splitting.
func (r Request) Chunks(param string, maxBytes int) []Request {
	if maxBytes <= 0 || len(r.ids) == 0 {
		return []Request{r}
	}

	var (
		chunks []Request
		cur    []KeyID
		size   int
	)
	base := len(param) + 1
	for _, id := range r.ids {
		n := len(strconv.FormatInt(int64(id), 10))
		add := n
		if len(cur) > 0 {
			add += encodedSeparator
		}
		if len(cur) > 0 && base+size+add > maxBytes {
			chunks = append(chunks, Request{ids: cur})
			cur, size, add = nil, 0, n
		}
		cur = append(cur, id)
		size += add
	}
	return append(chunks, Request{ids: cur})
}
