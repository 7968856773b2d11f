package llm

// Priority orders requests for dequeue. Lower numeric value dequeues first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// request is one queued generation job. seq breaks ties between equal
// priorities in enqueue order.
type request struct {
	id           string
	prompt       string
	systemPrompt string
	temperature  float64
	maxTokens    int
	priority     Priority
	seq          int64

	result chan outcome
}

type outcome struct {
	response *Response
	err      error
}

// requestHeap is a container/heap.Interface ordering by (priority, seq).
type requestHeap []*request

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x interface{}) {
	*h = append(*h, x.(*request))
}

func (h *requestHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
