package noc

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// A PortDesc is the serializable form of a RouterPortPair.
type PortDesc struct {
	Kind  string `json:"kind" yaml:"kind"`
	Index int    `json:"index" yaml:"index"`
	Port  int    `json:"port" yaml:"port"`
}

// A ConnDesc is the serializable form of one unidirectional connection.
type ConnDesc struct {
	Src PortDesc `json:"src" yaml:"src"`
	Dst PortDesc `json:"dst" yaml:"dst"`
}

// A TopologyDesc is a serializable explicit-connection topology description.
// Serialization to json or to yaml is selected based on the file extension.
type TopologyDesc struct {
	Name        string     `json:"name" yaml:"name"`
	Connections []ConnDesc `json:"connections" yaml:"connections"`
}

var nodeKindNames = map[string]NodeKind{
	"source":      NodeSource,
	"router":      NodeRouter,
	"destination": NodeDestination,
}

func (d PortDesc) portPair() (RouterPortPair, error) {
	kind, ok := nodeKindNames[d.Kind]
	if !ok {
		return RouterPortPair{}, errors.Errorf(
			"unknown node kind %q", d.Kind)
	}
	return RouterPortPair{
		Node: NodeID{Kind: kind, Index: d.Index},
		Port: d.Port,
	}, nil
}

func portDescOf(p RouterPortPair) PortDesc {
	name := ""
	for n, k := range nodeKindNames {
		if k == p.Node.Kind {
			name = n
		}
	}
	return PortDesc{Kind: name, Index: p.Node.Index, Port: p.Port}
}

// ReadTopologyDesc deserializes a TopologyDesc from a .yaml, .yml or .json
// file.
func ReadTopologyDesc(path string) (*TopologyDesc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading topology file %s", path)
	}

	desc := new(TopologyDesc)
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, desc)
	case ".json":
		err = json.Unmarshal(raw, desc)
	default:
		return nil, errors.Errorf("unknown topology file extension %q", ext)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing topology file %s", path)
	}

	return desc, nil
}

// WriteToFile serializes the description into a .yaml, .yml or .json file.
func (d *TopologyDesc) WriteToFile(path string) error {
	var raw []byte
	var err error

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		raw, err = yaml.Marshal(d)
	case ".json":
		raw, err = json.MarshalIndent(d, "", "  ")
	default:
		return errors.Errorf("unknown topology file extension %q", ext)
	}
	if err != nil {
		return errors.Wrapf(err, "serializing topology %s", d.Name)
	}

	return errors.Wrapf(os.WriteFile(path, raw, 0644),
		"writing topology file %s", path)
}

// DescOf captures an existing topology as a serializable description.
func DescOf(name string, t *Topology) *TopologyDesc {
	desc := &TopologyDesc{Name: name}
	for _, conn := range t.Connections() {
		desc.Connections = append(desc.Connections, ConnDesc{
			Src: portDescOf(conn.Src),
			Dst: portDescOf(conn.Dst),
		})
	}
	return desc
}

// Build assembles the topology the description names, with the same
// connectivity checking as direct Connect calls.
func (d *TopologyDesc) Build() (*Topology, error) {
	t := NewTopology()
	for _, cd := range d.Connections {
		src, err := cd.Src.portPair()
		if err != nil {
			return nil, errors.Wrapf(err, "topology %s", d.Name)
		}
		dst, err := cd.Dst.portPair()
		if err != nil {
			return nil, errors.Wrapf(err, "topology %s", d.Name)
		}
		if err := t.Connect(src, dst); err != nil {
			return nil, errors.Wrapf(err, "topology %s", d.Name)
		}
	}
	return t, nil
}
