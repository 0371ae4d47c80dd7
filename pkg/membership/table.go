package membership

import "fmt"

// Table is the static, ordered list of agent addresses for a run. Every
// agent holds the same table for the lifetime of the cluster.
type Table struct {
	addrs []string
}

func NewTable(addrs []string) *Table {
	cp := make([]string, len(addrs))
	copy(cp, addrs)
	return &Table{addrs: cp}
}

// N returns the cluster size.
func (t *Table) N() int {
	return len(t.addrs)
}

// Addr returns the address of the agent at the given index.
func (t *Table) Addr(i int) (string, error) {
	if i < 0 || i >= len(t.addrs) {
		return "", fmt.Errorf("agent index %d out of range [0, %d)", i, len(t.addrs))
	}
	return t.addrs[i], nil
}

// Peers returns the addresses of every agent except self, keyed by index.
func (t *Table) Peers(self int) map[int]string {
	peers := make(map[int]string, len(t.addrs)-1)
	for i, addr := range t.addrs {
		if i == self {
			continue
		}
		peers[i] = addr
	}
	return peers
}
