package federation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Peer is one remote node in the machines registry.
type Peer struct {
	Hostname string `json:"hostname"`
	URL      string `json:"url"`
	Label    string `json:"label,omitempty"`
}

type machinesFile struct {
	Machines []Peer `json:"machines"`
}

// LoadPeers reads the machines registry. A missing file means no peers, not
// an error.
func LoadPeers(path string) ([]Peer, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read machines file: %w", err)
	}

	var mf machinesFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse machines file: %w", err)
	}

	peers := make([]Peer, 0, len(mf.Machines))
	for _, p := range mf.Machines {
		if p.Hostname == "" || p.URL == "" {
			continue
		}
		p.URL = strings.TrimRight(p.URL, "/")
		peers = append(peers, p)
	}
	return peers, nil
}
