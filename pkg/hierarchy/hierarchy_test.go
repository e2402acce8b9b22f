package hierarchy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/hierarchy"
)

var _ = Describe("Store", func() {
	var tree *hierarchy.Store

	BeforeEach(func() {
		tree = hierarchy.NewStore(hierarchy.DefaultConfig())
	})

	Describe("AddCategory", func() {
		It("creates a root node at depth 0", func() {
			node, err := tree.AddCategory("Technology", "")
			Expect(err).ToNot(HaveOccurred())
			Expect(node.Depth).To(Equal(0))
			Expect(node.FullPath).To(Equal("Technology"))
			Expect(node.ParentID).To(BeEmpty())
		})

		It("sets child depth to parent depth plus one and joins the path", func() {
			_, err := tree.AddCategory("Technology", "")
			Expect(err).ToNot(HaveOccurred())

			child, err := tree.AddCategory("Programming", "Technology")
			Expect(err).ToNot(HaveOccurred())
			Expect(child.Depth).To(Equal(1))
			Expect(child.FullPath).To(Equal("Technology/Programming"))

			grandchild, err := tree.AddCategory("Go", "Technology/Programming")
			Expect(err).ToNot(HaveOccurred())
			Expect(grandchild.Depth).To(Equal(2))
			Expect(grandchild.FullPath).To(Equal("Technology/Programming/Go"))
		})

		It("fails fast when the parent path does not exist", func() {
			_, err := tree.AddCategory("Programming", "Nonexistent")
			Expect(err).To(HaveOccurred())

			var parentErr hierarchy.InvalidParentError
			Expect(err).To(BeAssignableToTypeOf(parentErr))
			Expect(tree.Len()).To(BeZero(), "no intermediate nodes are created")
		})

		It("rejects nodes beyond the maximum depth", func() {
			shallow := hierarchy.NewStore(hierarchy.Config{MaxDepth: 2})

			_, err := shallow.AddCategory("a", "")
			Expect(err).ToNot(HaveOccurred())
			_, err = shallow.AddCategory("b", "a")
			Expect(err).ToNot(HaveOccurred())

			_, err = shallow.AddCategory("c", "a/b")
			var depthErr hierarchy.DepthExceededError
			Expect(err).To(BeAssignableToTypeOf(depthErr))
		})

		It("rejects empty names and names containing the separator", func() {
			_, err := tree.AddCategory("", "")
			Expect(err).To(HaveOccurred())

			_, err = tree.AddCategory("a/b", "")
			Expect(err).To(HaveOccurred())
		})

		It("is idempotent when re-adding under the same parent", func() {
			_, err := tree.AddCategory("Technology", "")
			Expect(err).ToNot(HaveOccurred())

			again, err := tree.AddCategory("Technology", "")
			Expect(err).ToNot(HaveOccurred())
			Expect(again.FullPath).To(Equal("Technology"))
			Expect(tree.Len()).To(Equal(1))
		})

		It("matches names case-insensitively by default", func() {
			_, err := tree.AddCategory("Technology", "")
			Expect(err).ToNot(HaveOccurred())

			_, err = tree.AddCategory("Programming", "technology")
			Expect(err).ToNot(HaveOccurred())

			_, ok := tree.Node("TECHNOLOGY/programming")
			Expect(ok).To(BeTrue())
		})
	})

	Describe("traversal", func() {
		BeforeEach(func() {
			_, err := tree.AddCategory("Technology", "")
			Expect(err).ToNot(HaveOccurred())
			_, err = tree.AddCategory("Programming", "Technology")
			Expect(err).ToNot(HaveOccurred())
			_, err = tree.AddCategory("Databases", "Technology")
			Expect(err).ToNot(HaveOccurred())
			_, err = tree.AddCategory("Go", "Technology/Programming")
			Expect(err).ToNot(HaveOccurred())
			_, err = tree.AddCategory("Finance", "")
			Expect(err).ToNot(HaveOccurred())
		})

		It("returns ancestors root first", func() {
			chain, err := tree.Ancestors("Go")
			Expect(err).ToNot(HaveOccurred())
			Expect(chain).To(HaveLen(2))
			Expect(chain[0].Name).To(Equal("Technology"))
			Expect(chain[1].Name).To(Equal("Programming"))
		})

		It("returns no ancestors for a root", func() {
			chain, err := tree.Ancestors("Technology")
			Expect(err).ToNot(HaveOccurred())
			Expect(chain).To(BeEmpty())
		})

		It("returns every descendant of a node", func() {
			nodes, err := tree.Descendants("Technology")
			Expect(err).ToNot(HaveOccurred())

			names := make([]string, 0, len(nodes))
			for _, n := range nodes {
				names = append(names, n.Name)
			}
			Expect(names).To(ConsistOf("Programming", "Databases", "Go"))
		})

		It("reports strict descendant relationships", func() {
			Expect(tree.IsDescendantOf("Go", "Technology")).To(BeTrue())
			Expect(tree.IsDescendantOf("Technology", "Go")).To(BeFalse())
			Expect(tree.IsDescendantOf("Go", "Go")).To(BeFalse())
			Expect(tree.IsDescendantOf("Finance", "Technology")).To(BeFalse())
		})

		It("finds the deepest common ancestor", func() {
			node, ok := tree.CommonAncestor([]string{"Go", "Databases"})
			Expect(ok).To(BeTrue())
			Expect(node.Name).To(Equal("Technology"))
		})

		It("returns the node itself for a single-element input", func() {
			node, ok := tree.CommonAncestor([]string{"Programming"})
			Expect(ok).To(BeTrue())
			Expect(node.Name).To(Equal("Programming"))
		})

		It("reports no common ancestor for disjoint roots", func() {
			_, ok := tree.CommonAncestor([]string{"Go", "Finance"})
			Expect(ok).To(BeFalse())
		})

		It("searches by substring ordered by depth then name", func() {
			nodes := tree.SearchCategories("tech", 10)
			Expect(nodes).ToNot(BeEmpty())
			Expect(nodes[0].Name).To(Equal("Technology"))
		})
	})

	Describe("RemoveCategory", func() {
		It("removes a node and its entire subtree", func() {
			_, err := tree.AddCategory("Technology", "")
			Expect(err).ToNot(HaveOccurred())
			_, err = tree.AddCategory("Programming", "Technology")
			Expect(err).ToNot(HaveOccurred())
			_, err = tree.AddCategory("Go", "Technology/Programming")
			Expect(err).ToNot(HaveOccurred())

			Expect(tree.RemoveCategory("Programming")).To(Succeed())

			_, ok := tree.Node("Go")
			Expect(ok).To(BeFalse())
			_, ok = tree.Node("Technology")
			Expect(ok).To(BeTrue())
			Expect(tree.Len()).To(Equal(1))
		})

		It("returns a not-found error for unknown names", func() {
			err := tree.RemoveCategory("nope")
			var nfErr hierarchy.NotFoundError
			Expect(err).To(BeAssignableToTypeOf(nfErr))
		})
	})

	Describe("Generation", func() {
		It("increments on every mutation", func() {
			start := tree.Generation()

			_, err := tree.AddCategory("a", "")
			Expect(err).ToNot(HaveOccurred())
			Expect(tree.Generation()).To(Equal(start + 1))

			Expect(tree.RemoveCategory("a")).To(Succeed())
			Expect(tree.Generation()).To(Equal(start + 2))
		})
	})

	Describe("Export and Import", func() {
		It("round-trips the tree structure", func() {
			_, err := tree.AddCategory("Technology", "")
			Expect(err).ToNot(HaveOccurred())
			_, err = tree.AddCategory("Programming", "Technology")
			Expect(err).ToNot(HaveOccurred())
			_, err = tree.AddCategory("Finance", "")
			Expect(err).ToNot(HaveOccurred())

			exported := tree.Export()

			fresh := hierarchy.NewStore(hierarchy.DefaultConfig())
			Expect(fresh.Import(exported)).To(Succeed())

			Expect(fresh.Len()).To(Equal(3))
			node, ok := fresh.Node("Technology/Programming")
			Expect(ok).To(BeTrue())
			Expect(node.Depth).To(Equal(1))
		})

		It("leaves the store empty when import exceeds the depth limit", func() {
			deep := hierarchy.NewStore(hierarchy.DefaultConfig())
			_, err := deep.AddCategory("a", "")
			Expect(err).ToNot(HaveOccurred())
			_, err = deep.AddCategory("b", "a")
			Expect(err).ToNot(HaveOccurred())
			_, err = deep.AddCategory("c", "a/b")
			Expect(err).ToNot(HaveOccurred())

			shallow := hierarchy.NewStore(hierarchy.Config{MaxDepth: 2})
			Expect(shallow.Import(deep.Export())).ToNot(Succeed())
			Expect(shallow.Len()).To(BeZero())
		})
	})

	Describe("Validate", func() {
		It("passes for a well-formed tree", func() {
			_, err := tree.AddCategory("Technology", "")
			Expect(err).ToNot(HaveOccurred())
			_, err = tree.AddCategory("Programming", "Technology")
			Expect(err).ToNot(HaveOccurred())

			report := tree.Validate()
			Expect(report.IsValid).To(BeTrue())
			Expect(report.Errors).To(BeEmpty())
		})
	})
})
