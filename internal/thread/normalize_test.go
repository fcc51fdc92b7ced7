package thread

import (
	"CommentThread/internal/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(day string) time.Time {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		panic(err)
	}
	return t
}

func row(id, parent string, depth int, day string) models.FlatCommentRow {
	r := models.FlatCommentRow{
		ID:        id,
		PostID:    "post-1",
		Author:    models.CommentAuthor{ID: "user-" + id, DisplayName: "User " + id},
		Content:   "comment " + id,
		Depth:     &depth,
		CreatedAt: ts(day),
	}
	if parent != "" {
		p := parent
		r.ParentID = &p
	}
	return r
}

func ids(nodes []*models.CommentNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

// checkInvariants asserts depth consistency and sibling ordering over the
// whole tree.
func checkInvariants(t *testing.T, tree *Tree) {
	t.Helper()
	roots := tree.Roots()
	for i := 1; i < len(roots); i++ {
		a, _ := tree.Get(roots[i-1])
		b, _ := tree.Get(roots[i])
		assert.False(t, a.CreatedAt.Before(b.CreatedAt), "roots must be newest first: %s before %s", a.ID, b.ID)
	}
	tree.Walk(func(c models.Comment) bool {
		if c.ParentID == "" {
			assert.Equal(t, 0, c.Depth, "root %s", c.ID)
		}
		if pid, ok := tree.Parent(c.ID); ok {
			p, _ := tree.Get(pid)
			assert.Equal(t, p.Depth+1, c.Depth, "depth of %s", c.ID)
		}
		replies := tree.Replies(c.ID)
		for i := 1; i < len(replies); i++ {
			a, _ := tree.Get(replies[i-1])
			b, _ := tree.Get(replies[i])
			assert.False(t, a.CreatedAt.After(b.CreatedAt), "replies must be oldest first: %s before %s", a.ID, b.ID)
		}
		return true
	})
}

func TestNormalize_RootsNewestFirstRepliesOldestFirst(t *testing.T) {
	rows := []models.FlatCommentRow{
		row("a", "", 0, "2024-01-02"),
		row("b", "a", 1, "2024-01-01"),
		row("c", "", 0, "2024-01-03"),
	}

	nodes := Normalize(rows)

	require.Len(t, nodes, 2)
	assert.Equal(t, []string{"c", "a"}, ids(nodes))
	assert.Equal(t, []string{"b"}, ids(nodes[1].Replies))
	assert.NotNil(t, nodes[0].Replies)
	assert.Empty(t, nodes[0].Replies)
}

func TestBuild_OutOfOrderRowsAndUntrustedDepth(t *testing.T) {
	rows := []models.FlatCommentRow{
		row("r1c1c1", "r1c1", 7, "2024-01-05"),
		row("r1c2", "r1", -4, "2024-01-04"),
		row("r1c1", "r1", 1, "2024-01-03"),
		row("r1", "", 2, "2024-01-01"),
		row("r2", "", 0, "2024-01-02"),
	}
	rows[1].Depth = nil

	tree, rep := Build(rows)

	assert.Empty(t, rep.Orphans)
	assert.Equal(t, []string{"r2", "r1"}, tree.Roots())
	assert.Equal(t, []string{"r1c1", "r1c2"}, tree.Replies("r1"))

	r1, _ := tree.Get("r1")
	deep, _ := tree.Get("r1c1c1")
	second, _ := tree.Get("r1c2")
	assert.Equal(t, 0, r1.Depth)
	assert.Equal(t, 2, deep.Depth)
	assert.Equal(t, 1, second.Depth)
	checkInvariants(t, tree)
}

func TestBuild_StableForEqualTimestamps(t *testing.T) {
	rows := []models.FlatCommentRow{
		row("x", "", 0, "2024-01-01"),
		row("y", "", 0, "2024-01-01"),
		row("x1", "x", 1, "2024-01-02"),
		row("x2", "x", 1, "2024-01-02"),
	}

	tree, _ := Build(rows)

	assert.Equal(t, []string{"x", "y"}, tree.Roots())
	assert.Equal(t, []string{"x1", "x2"}, tree.Replies("x"))
}

func TestBuild_OrphanedReplyBecomesRoot(t *testing.T) {
	rows := []models.FlatCommentRow{
		row("a", "", 0, "2024-01-01"),
		row("lost", "elsewhere", 2, "2024-01-02"),
		row("lost-child", "lost", 9, "2024-01-03"),
	}

	tree, rep := Build(rows)

	assert.Equal(t, []string{"lost"}, rep.Orphans)
	assert.Equal(t, []string{"lost", "a"}, tree.Roots())
	lost, _ := tree.Get("lost")
	child, _ := tree.Get("lost-child")
	assert.Equal(t, "elsewhere", lost.ParentID)
	assert.Equal(t, 2, lost.Depth, "declared depth kept for orphan")
	assert.Equal(t, 3, child.Depth)
	_, ok := tree.Parent("lost")
	assert.False(t, ok)
}

func TestBuild_OrphanWithNegativeDepthFallsBackToZero(t *testing.T) {
	tree, rep := Build([]models.FlatCommentRow{row("o", "gone", -1, "2024-01-01")})

	require.Len(t, rep.Orphans, 1)
	o, _ := tree.Get("o")
	assert.Equal(t, 0, o.Depth)
}

func TestBuild_BreaksParentCycles(t *testing.T) {
	rows := []models.FlatCommentRow{
		row("root", "", 0, "2024-01-01"),
		row("p", "q", 1, "2024-01-02"),
		row("q", "p", 1, "2024-01-03"),
		row("self", "self", 1, "2024-01-04"),
	}

	tree, rep := Build(rows)

	assert.Equal(t, 4, tree.Len())
	assert.ElementsMatch(t, []string{"p", "self"}, rep.Orphans)
	assert.Contains(t, tree.Roots(), "p")
	assert.Equal(t, []string{"q"}, tree.Replies("p"))

	seen := 0
	tree.Walk(func(models.Comment) bool {
		seen++
		return true
	})
	assert.Equal(t, 4, seen, "every node reachable exactly once")
}

func TestBuild_DuplicateAndInvalidRows(t *testing.T) {
	first := row("a", "", 0, "2024-01-01")
	dup := row("a", "", 0, "2024-02-01")
	dup.Content = "second copy"

	tree, rep := Build([]models.FlatCommentRow{first, dup, {Content: "no id"}})

	assert.Equal(t, 1, rep.Duplicates)
	assert.Equal(t, 1, rep.Invalid)
	a, _ := tree.Get("a")
	assert.Equal(t, "comment a", a.Content)
}

func TestBuild_DepthInvariantOnLargerThread(t *testing.T) {
	rows := []models.FlatCommentRow{
		row("r1", "", 0, "2024-03-01"),
		row("r2", "", 0, "2024-03-05"),
		row("r3", "", 0, "2024-03-03"),
		row("r1a", "r1", 5, "2024-03-09"),
		row("r1b", "r1", 1, "2024-03-02"),
		row("r1b1", "r1b", 0, "2024-03-04"),
		row("r1b2", "r1b", 2, "2024-03-03"),
		row("r1b1x", "r1b1", 3, "2024-03-08"),
		row("r3a", "r3", 1, "2024-03-07"),
	}

	tree, rep := Build(rows)

	assert.Empty(t, rep.Orphans)
	assert.Equal(t, []string{"r2", "r3", "r1"}, tree.Roots())
	assert.Equal(t, []string{"r1b", "r1a"}, tree.Replies("r1"))
	assert.Equal(t, []string{"r1b2", "r1b1"}, tree.Replies("r1b"))
	checkInvariants(t, tree)
}
