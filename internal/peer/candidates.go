package peer

import "github.com/pion/webrtc/v4"

// candidateQueue holds remote candidates that arrive before the remote
// description is set.
type candidateQueue struct {
	items []webrtc.ICECandidateInit
}

func (q *candidateQueue) push(c webrtc.ICECandidateInit) {
	q.items = append(q.items, c)
}

func (q *candidateQueue) len() int {
	return len(q.items)
}

// flush applies queued candidates in arrival order and empties the queue.
// It returns the first error but keeps going.
func (q *candidateQueue) flush(add func(webrtc.ICECandidateInit) error) error {
	var first error
	for _, c := range q.items {
		if err := add(c); err != nil && first == nil {
			first = err
		}
	}
	q.items = nil
	return first
}
