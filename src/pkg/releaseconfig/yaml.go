package releaseconfig

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// lineEdit replaces lines [start, end] (1-based, inclusive) with repl
type lineEdit struct {
	start, end int
	repl       []string
}

// rewriteYAML edits the document line by line, using node positions from
// yaml.v3 to find the extent of each entry, so untouched lines survive verbatim.
func (r *Rewriter) rewriteYAML(doc string, branch string) (string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &root); err != nil {
		return "", fmt.Errorf("invalid YAML release config: %w", err)
	}
	lines := splitLines(doc)
	branchesEntry := "branches: " + flowList(branch)

	mapping := documentMapping(&root)
	if mapping == nil {
		if !isEmptyDocument(&root) {
			return "", fmt.Errorf("release config must be a mapping")
		}
		return joinLines(append(lines, branchesEntry)), nil
	}
	if mapping.Style&yaml.FlowStyle != 0 {
		return r.rewriteYAMLNodes(&root, mapping, branch)
	}

	var edits []lineEdit
	foundBranches := false
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, value := mapping.Content[i], mapping.Content[i+1]
		start, end := key.Line, entryEnd(lines, mapping, i)
		indent := strings.Repeat(" ", key.Column-1)

		switch key.Value {
		case "branches":
			foundBranches = true
			edits = append(edits, lineEdit{start: start, end: end, repl: []string{indent + branchesEntry}})
		case "plugins":
			pluginEdits, err := r.pluginEdits(lines, value, start, end, indent)
			if err != nil {
				return "", err
			}
			edits = append(edits, pluginEdits...)
		}
	}

	lines = applyEdits(lines, edits)
	if !foundBranches {
		lines = append(lines, branchesEntry)
	}
	return joinLines(lines), nil
}

func (r *Rewriter) pluginEdits(lines []string, plugins *yaml.Node, start, end int, indent string) ([]lineEdit, error) {
	if plugins.Kind != yaml.SequenceNode {
		return nil, nil
	}

	if plugins.Style&yaml.FlowStyle != 0 {
		kept := r.keptPlugins(plugins.Content)
		if len(kept) == len(plugins.Content) {
			return nil, nil
		}
		out, err := yaml.Marshal(&yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle, Content: kept})
		if err != nil {
			return nil, fmt.Errorf("failed to encode plugins: %w", err)
		}
		flow := splitLines(strings.TrimSpace(string(out)))
		repl := []string{indent + "plugins: " + flow[0]}
		for _, l := range flow[1:] {
			repl = append(repl, indent+"  "+strings.TrimSpace(l))
		}
		return []lineEdit{{start: start, end: end, repl: repl}}, nil
	}

	items := plugins.Content
	var edits []lineEdit
	for j, item := range items {
		if !r.stripped[pluginName(item)] {
			continue
		}
		itemStart := itemStartLine(lines, item)
		itemEnd := end
		if j+1 < len(items) {
			itemEnd = itemStartLine(lines, items[j+1]) - 1
		}
		itemEnd = trimTrailingTrivia(lines, itemStart, itemEnd)
		logger.WithField("plugin", pluginName(item)).Debug("Stripping plugin")
		edits = append(edits, lineEdit{start: itemStart, end: itemEnd})
	}

	if len(items) > 0 && len(edits) == len(items) {
		return []lineEdit{{start: start, end: end, repl: []string{indent + "plugins: []"}}}, nil
	}
	return edits, nil
}

// rewriteYAMLNodes handles flow-style documents, which cannot be edited by line
func (r *Rewriter) rewriteYAMLNodes(root *yaml.Node, mapping *yaml.Node, branch string) (string, error) {
	branches := &yaml.Node{
		Kind:    yaml.SequenceNode,
		Style:   yaml.FlowStyle,
		Content: []*yaml.Node{{Kind: yaml.ScalarNode, Tag: "!!str", Style: yaml.DoubleQuotedStyle, Value: branch}},
	}

	foundBranches := false
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		switch mapping.Content[i].Value {
		case "branches":
			foundBranches = true
			mapping.Content[i+1] = branches
		case "plugins":
			if plugins := mapping.Content[i+1]; plugins.Kind == yaml.SequenceNode {
				plugins.Content = r.keptPlugins(plugins.Content)
			}
		}
	}
	if !foundBranches {
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "branches"}, branches)
	}

	out, err := yaml.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("failed to encode release config: %w", err)
	}
	return string(out), nil
}

func (r *Rewriter) keptPlugins(items []*yaml.Node) []*yaml.Node {
	kept := make([]*yaml.Node, 0, len(items))
	for _, item := range items {
		if !r.stripped[pluginName(item)] {
			kept = append(kept, item)
		}
	}
	return kept
}

// pluginName is the name of a `- name` or `- [name, {options}]` entry
func pluginName(item *yaml.Node) string {
	switch item.Kind {
	case yaml.ScalarNode:
		return item.Value
	case yaml.SequenceNode:
		if len(item.Content) > 0 && item.Content[0].Kind == yaml.ScalarNode {
			return item.Content[0].Value
		}
	}
	return ""
}

func documentMapping(root *yaml.Node) *yaml.Node {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil
	}
	if m := root.Content[0]; m.Kind == yaml.MappingNode {
		return m
	}
	return nil
}

// isEmptyDocument covers empty and comment-only input
func isEmptyDocument(root *yaml.Node) bool {
	if root.Kind == 0 || len(root.Content) == 0 {
		return true
	}
	n := root.Content[0]
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null" && n.Value == ""
}

// entryEnd is the last line of the i-th key/value pair of mapping
func entryEnd(lines []string, mapping *yaml.Node, i int) int {
	end := len(lines)
	if i+2 < len(mapping.Content) {
		end = mapping.Content[i+2].Line - 1
	}
	return trimTrailingTrivia(lines, mapping.Content[i].Line, end)
}

// itemStartLine includes a lone "-" line preceding the item content
func itemStartLine(lines []string, item *yaml.Node) int {
	l := item.Line
	if l >= 2 && strings.TrimSpace(lines[l-2]) == "-" {
		return l - 1
	}
	return l
}

// trimTrailingTrivia moves end up past blank and comment-only lines
func trimTrailingTrivia(lines []string, start, end int) int {
	for end > start {
		trimmed := strings.TrimSpace(lines[end-1])
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			break
		}
		end--
	}
	return end
}

func applyEdits(lines []string, edits []lineEdit) []string {
	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	for _, e := range edits {
		out := make([]string, 0, len(lines)-(e.end-e.start+1)+len(e.repl))
		out = append(out, lines[:e.start-1]...)
		out = append(out, e.repl...)
		out = append(out, lines[e.end:]...)
		lines = out
	}
	return lines
}

func flowList(value string) string {
	return "[" + strconv.Quote(value) + "]"
}

func splitLines(doc string) []string {
	if doc == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(doc, "\n"), "\n")
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n") + "\n"
}
