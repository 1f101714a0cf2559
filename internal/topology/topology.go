// Package topology is the static description of what the switch is
// expected to host: extensions, trunks, queues, parkings and groups.
package topology

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Kind is the record type.
type Kind string

const (
	KindExtension Kind = "extension"
	KindTrunk     Kind = "trunk"
	KindQueue     Kind = "queue"
	KindParking   Kind = "parking"
	KindGroup     Kind = "group"
)

// Record is one entry of the topology descriptor.
type Record struct {
	ID             string   `yaml:"-"`
	Type           Kind     `yaml:"type"`
	Tech           string   `yaml:"tech"`
	Label          string   `yaml:"label"`
	Extension      string   `yaml:"extension"`
	Queue          string   `yaml:"queue"`
	Trunk          string   `yaml:"trunk"`
	DynamicMembers []string `yaml:"dynamic_members"`
	MaxChannels    int      `yaml:"max_channels"`
	Transport      string   `yaml:"transport"`
	Members        []string `yaml:"members"`
}

// Key returns the natural identifier of the entity the record describes.
func (r Record) Key() string {
	switch r.Type {
	case KindExtension, KindParking:
		if r.Extension != "" {
			return r.Extension
		}
	case KindQueue:
		if r.Queue != "" {
			return r.Queue
		}
	case KindTrunk:
		if r.Trunk != "" {
			return r.Trunk
		}
	}
	return r.ID
}

// Registry is the parsed topology, record id -> record.
type Registry struct {
	records map[string]Record
}

// New builds a registry from already parsed records.
func New(records map[string]Record) (*Registry, error) {
	r := &Registry{records: make(map[string]Record, len(records))}
	for id, rec := range records {
		rec.ID = id
		if err := rec.validate(); err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		r.records[id] = rec
	}
	return r, nil
}

// Load reads the registry from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML topology document.
func Parse(data []byte) (*Registry, error) {
	var records map[string]Record
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}
	return New(records)
}

func (r Record) validate() error {
	switch r.Type {
	case KindExtension, KindTrunk:
		switch r.Tech {
		case "sip", "iax":
		default:
			return fmt.Errorf("unsupported tech %q", r.Tech)
		}
	case KindQueue, KindParking, KindGroup:
	default:
		return fmt.Errorf("unknown type %q", r.Type)
	}
	return nil
}

// ByKind returns the records of a kind, ordered by key.
func (r *Registry) ByKind(k Kind) []Record {
	var out []Record
	for _, rec := range r.records {
		if rec.Type == k {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Get returns the record with the given id.
func (r *Registry) Get(id string) (Record, bool) {
	rec, ok := r.records[id]
	return rec, ok
}

// Len returns the number of records.
func (r *Registry) Len() int {
	return len(r.records)
}
