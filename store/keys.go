package store

// DefaultNamespace prefixes collection keys when none is configured.
const DefaultNamespace = "qu"

// Namespace builds collection keys of the form "<ns>:<kind>[:<name>]".
type Namespace string

func (n Namespace) prefix() string {
	if n == "" {
		return DefaultNamespace
	}

	return string(n)
}

// Queue returns the collection holding the pending jobs of queue name.
func (n Namespace) Queue(name string) string { return n.prefix() + ":queue:" + name }

// Queues returns the collection holding the queue registry.
func (n Namespace) Queues() string { return n.prefix() + ":queues" }

// Workers returns the collection holding worker records.
func (n Namespace) Workers() string { return n.prefix() + ":workers" }

// Audit returns the collection holding audit events.
func (n Namespace) Audit() string { return n.prefix() + ":audit" }
