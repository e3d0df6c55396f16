package qu

// Mode selects how a reservation behaves when every queue is empty.
type Mode int

const (
	// Blocking keeps polling, sleeping the poll interval between rounds,
	// until a job arrives or the context ends.
	Blocking Mode = iota
	// NonBlocking returns no job after one empty round.
	NonBlocking
)

// String returns "blocking" or "non-blocking".
func (m Mode) String() string {
	if m == NonBlocking {
		return "non-blocking"
	}
	return "blocking"
}
