package cluster

import (
	"fmt"
	"os"
	"strings"

	"github.com/gabteles/qu-mongoid/store"
)

// Worker is one worker process: the queues it polls, in priority order,
// plus free-form attributes.
type Worker struct {
	ID         string         `json:"id"`
	Queues     []string       `json:"queues"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// NewWorker describes the current process as a worker on queues. Its ID is
// "hostname:pid:q1,q2" and its attributes carry hostname and pid.
func NewWorker(queues ...string) *Worker {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	pid := os.Getpid()

	return &Worker{
		ID:     fmt.Sprintf("%s:%d:%s", host, pid, strings.Join(queues, ",")),
		Queues: append([]string(nil), queues...),
		Attributes: map[string]any{
			"hostname": host,
			"pid":      pid,
		},
	}
}

// Document field names.
const (
	fieldID         = "_id"
	fieldQueues     = "queues"
	fieldAttributes = "attributes"
)

func (w *Worker) document() store.Document {
	queues := make([]any, len(w.Queues))
	for i, q := range w.Queues {
		queues[i] = q
	}
	attrs := make(map[string]any, len(w.Attributes))
	for k, v := range w.Attributes {
		attrs[k] = v
	}
	return store.Document{
		fieldQueues:     queues,
		fieldAttributes: attrs,
	}
}

func workerFromDocument(doc store.Document) (*Worker, error) {
	wid, ok := doc[fieldID].(string)
	if !ok || wid == "" {
		return nil, fmt.Errorf("decode worker: missing id")
	}

	w := &Worker{ID: wid}
	if raw, ok := doc[fieldQueues].([]any); ok {
		for _, q := range raw {
			if s, ok := q.(string); ok {
				w.Queues = append(w.Queues, s)
			}
		}
	}
	if attrs, ok := doc[fieldAttributes].(map[string]any); ok && len(attrs) > 0 {
		w.Attributes = attrs
	}
	return w, nil
}
