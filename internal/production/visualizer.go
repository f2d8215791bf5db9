// Package production provides production integrations: metrics, record
// publishing and model visualization.
package production

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/comalice/hsm/internal/primitives"
)

// Description is the serializable view of a compiled model.
type Description struct {
	Name        string    `json:"name" yaml:"name"`
	Fingerprint string    `json:"fingerprint" yaml:"fingerprint"`
	Structure   string    `json:"structure" yaml:"structure"`
	Events      []string  `json:"events" yaml:"events"`
	Root        StateDesc `json:"root" yaml:"root"`
}

// StateDesc describes one node.
type StateDesc struct {
	Name     string        `json:"name" yaml:"name"`
	Path     string        `json:"path" yaml:"path"`
	Active   bool          `json:"active,omitempty" yaml:"active,omitempty"`
	Handlers []HandlerDesc `json:"handlers,omitempty" yaml:"handlers,omitempty"`
	Guards   []HandlerDesc `json:"guards,omitempty" yaml:"guards,omitempty"`
	Entry    []string      `json:"entry,omitempty" yaml:"entry,omitempty"`
	Exit     []string      `json:"exit,omitempty" yaml:"exit,omitempty"`
	Regions  []RegionDesc  `json:"regions,omitempty" yaml:"regions,omitempty"`
}

// HandlerDesc describes a handler or guard and its targets.
type HandlerDesc struct {
	Name    string   `json:"name" yaml:"name"`
	Targets []string `json:"targets,omitempty" yaml:"targets,omitempty"`
}

// RegionDesc describes one region.
type RegionDesc struct {
	Name     string      `json:"name" yaml:"name"`
	Retained bool        `json:"retained,omitempty" yaml:"retained,omitempty"`
	Initial  string      `json:"initial" yaml:"initial"`
	Variants []StateDesc `json:"variants" yaml:"variants"`
}

// DefaultVisualizer renders models. Active node sets are optional and only
// used for highlighting.
type DefaultVisualizer struct{}

// Describe builds the serializable view of model.
func (v *DefaultVisualizer) Describe(model *primitives.Model, active []primitives.NodeID) Description {
	isActive := activeSet(active)
	events := make([]string, len(model.Events))
	for i, e := range model.Events {
		events[i] = e.Protocol + "." + e.Method.Signature()
	}
	return Description{
		Name:        model.Name,
		Fingerprint: model.Fingerprint(),
		Structure:   model.Structure(),
		Events:      events,
		Root:        describeNode(model, primitives.RootID, isActive),
	}
}

func describeNode(model *primitives.Model, id primitives.NodeID, active map[primitives.NodeID]bool) StateDesc {
	n := model.Node(id)
	s := StateDesc{Name: n.Name, Path: model.Path(id), Active: active[id]}
	for _, e := range model.Events {
		if a, ok := n.Actions[e.ID]; ok {
			s.Handlers = append(s.Handlers, HandlerDesc{Name: e.String(), Targets: targetNames(model, a.Transitions)})
		}
	}
	for _, g := range n.Guards {
		s.Guards = append(s.Guards, HandlerDesc{Name: g.Name, Targets: targetNames(model, g.Transitions)})
	}
	for _, h := range n.Entry {
		s.Entry = append(s.Entry, h.Name)
	}
	for _, h := range n.Exit {
		s.Exit = append(s.Exit, h.Name)
	}
	for _, rid := range n.Regions {
		r := model.Region(rid)
		rd := RegionDesc{Name: r.Name, Retained: r.Retained, Initial: model.Node(r.Initial).Name}
		for _, vid := range r.Variants {
			rd.Variants = append(rd.Variants, describeNode(model, vid, active))
		}
		s.Regions = append(s.Regions, rd)
	}
	return s
}

func targetNames(model *primitives.Model, ts []primitives.Transition) []string {
	var out []string
	for _, t := range ts {
		out = append(out, model.Path(t.Target))
	}
	return out
}

func activeSet(active []primitives.NodeID) map[primitives.NodeID]bool {
	m := make(map[primitives.NodeID]bool, len(active))
	for _, id := range active {
		m[id] = true
	}
	return m
}

// ExportJSON serializes the model description to indented JSON.
func (v *DefaultVisualizer) ExportJSON(model *primitives.Model, active []primitives.NodeID) ([]byte, error) {
	return json.MarshalIndent(v.Describe(model, active), "", "  ")
}

// ExportYAML serializes the model description to YAML.
func (v *DefaultVisualizer) ExportYAML(model *primitives.Model, active []primitives.NodeID) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v.Describe(model, active)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportTree renders an indented outline, active nodes marked with '*'.
func (v *DefaultVisualizer) ExportTree(model *primitives.Model, active []primitives.NodeID) string {
	var sb strings.Builder
	writeTree(&sb, model, primitives.RootID, activeSet(active), 0)
	return sb.String()
}

func writeTree(sb *strings.Builder, model *primitives.Model, id primitives.NodeID, active map[primitives.NodeID]bool, indent int) {
	n := model.Node(id)
	mark := " "
	if active[id] {
		mark = "*"
	}
	fmt.Fprintf(sb, "%s%s %s\n", strings.Repeat("  ", indent), mark, n.Name)
	for _, rid := range n.Regions {
		r := model.Region(rid)
		flags := ""
		if r.Retained {
			flags = " (retained)"
		}
		fmt.Fprintf(sb, "%s  [%s]%s\n", strings.Repeat("  ", indent), r.Name, flags)
		for _, vid := range r.Variants {
			writeTree(sb, model, vid, active, indent+2)
		}
	}
}

// ExportDOT generates Graphviz DOT source for the model. Nodes are keyed by
// path so a definition listed at several positions renders once per
// position.
func (v *DefaultVisualizer) ExportDOT(model *primitives.Model, active []primitives.NodeID) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "digraph %q {\n", model.Name)
	buf.WriteString("  rankdir=LR;\n  compound=true;\n  node [shape=box, fontsize=10, style=rounded];\n  edge [fontsize=9];\n")

	isActive := activeSet(active)
	renderNode(&buf, model, primitives.RootID, isActive, "  ")

	for _, n := range model.Nodes {
		for _, e := range model.Events {
			if a, ok := n.Actions[e.ID]; ok {
				writeEdges(&buf, model, n.ID, a.Transitions, e.Method.Name, "")
			}
		}
		for _, g := range n.Guards {
			writeEdges(&buf, model, n.ID, g.Transitions, g.Name, " style=dashed")
		}
	}
	buf.WriteString("}\n")
	return buf.String()
}

func writeEdges(buf *bytes.Buffer, model *primitives.Model, from primitives.NodeID, ts []primitives.Transition, label, style string) {
	for _, t := range ts {
		fmt.Fprintf(buf, "  %q -> %q [label=%q%s];\n", model.Path(from), model.Path(t.Target), label, style)
	}
}

func renderNode(buf *bytes.Buffer, model *primitives.Model, id primitives.NodeID, active map[primitives.NodeID]bool, indent string) {
	n := model.Node(id)
	path := model.Path(id)
	style := ""
	if active[id] {
		style = " style=\"rounded,filled\" fillcolor=lightgreen"
	}
	if len(n.Regions) == 0 {
		fmt.Fprintf(buf, "%s%q [label=%q%s];\n", indent, path, n.Name, style)
		return
	}

	fmt.Fprintf(buf, "%ssubgraph %q {\n", indent, "cluster_"+path)
	fmt.Fprintf(buf, "%s  label=%q;\n", indent, n.Name)
	if active[id] {
		fmt.Fprintf(buf, "%s  style=filled; fillcolor=orange;\n", indent)
	}
	fmt.Fprintf(buf, "%s  %q [label=%q shape=ellipse%s];\n", indent, path, n.Name, style)
	for _, rid := range n.Regions {
		r := model.Region(rid)
		fmt.Fprintf(buf, "%s  subgraph %q {\n", indent, "cluster_"+path+"."+r.Name)
		label := r.Name
		if r.Retained {
			label += " (retained)"
		}
		fmt.Fprintf(buf, "%s    label=%q; style=dashed;\n", indent, label)
		for _, vid := range r.Variants {
			renderNode(buf, model, vid, active, indent+"    ")
		}
		fmt.Fprintf(buf, "%s  }\n", indent)
	}
	fmt.Fprintf(buf, "%s}\n", indent)
}
