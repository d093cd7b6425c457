package dip

import (
	"sort"
	"strings"
)

// TreeNode is a directory or file in a work's cached file tree.
type TreeNode struct {
	Name     string
	Path     string // full article address; empty for directories
	IsDir    bool
	Children []*TreeNode
}

// BuildTree arranges articles into a tree rooted at the repository.
// Directories sort before files; siblings sort by name.
func BuildTree(articles []*Article) *TreeNode {
	root := &TreeNode{IsDir: true}
	for _, a := range articles {
		p := ParsePath(a.Path)
		if p == nil {
			continue
		}
		node := root
		if p.DirPath != "" {
			for _, dir := range strings.Split(p.DirPath, "/") {
				node = node.child(dir)
			}
		}
		node.Children = append(node.Children, &TreeNode{Name: p.FullFilename, Path: a.Path})
	}
	root.sort()
	return root
}

func (n *TreeNode) child(name string) *TreeNode {
	for _, c := range n.Children {
		if c.IsDir && c.Name == name {
			return c
		}
	}
	c := &TreeNode{Name: name, IsDir: true}
	n.Children = append(n.Children, c)
	return c
}

func (n *TreeNode) sort() {
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return a.Name < b.Name
	})
	for _, c := range n.Children {
		if c.IsDir {
			c.sort()
		}
	}
}

// Walk visits every node depth first, passing its depth below the root.
func (n *TreeNode) Walk(fn func(node *TreeNode, depth int)) {
	var walk func(*TreeNode, int)
	walk = func(node *TreeNode, depth int) {
		for _, c := range node.Children {
			fn(c, depth)
			if c.IsDir {
				walk(c, depth+1)
			}
		}
	}
	walk(n, 0)
}
