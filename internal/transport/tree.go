package transport

import (
	"sort"
	"strings"
)

// FolderNode is one level of the folder hierarchy. Folder is nil for
// intermediate levels the server did not list on their own.
type FolderNode struct {
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	Folder   *Folder       `json:"folder,omitempty"`
	Children []*FolderNode `json:"children,omitempty"`
}

// BuildTree arranges a flat folder list into a hierarchy, splitting each
// name on its own delimiter. Siblings are sorted by name, with INBOX first.
func BuildTree(folders []Folder) []*FolderNode {
	root := &FolderNode{}
	index := make(map[string]*FolderNode)

	for i := range folders {
		f := &folders[i]
		segments := []string{f.Name}
		if f.Delimiter != "" {
			segments = strings.Split(f.Name, f.Delimiter)
		}

		parent := root
		path := ""
		for depth, seg := range segments {
			if depth == 0 {
				path = seg
			} else {
				path += f.Delimiter + seg
			}

			node, ok := index[path]
			if !ok {
				node = &FolderNode{Name: seg, Path: path}
				index[path] = node
				parent.Children = append(parent.Children, node)
			}
			parent = node
		}
		parent.Folder = f
	}

	sortNodes(root.Children)
	return root.Children
}

func sortNodes(nodes []*FolderNode) {
	stack := [][]*FolderNode{nodes}
	for len(stack) > 0 {
		level := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		sort.SliceStable(level, func(i, j int) bool {
			a, b := level[i].Name, level[j].Name
			if strings.EqualFold(a, "INBOX") != strings.EqualFold(b, "INBOX") {
				return strings.EqualFold(a, "INBOX")
			}
			return a < b
		})
		for _, n := range level {
			if len(n.Children) > 0 {
				stack = append(stack, n.Children)
			}
		}
	}
}
