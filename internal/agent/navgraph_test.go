package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
)

func TestNavGraphVisitCounting(t *testing.T) {
	g := NewNavGraph(zaptest.NewLogger(t))

	g.AddOrUpdatePage("https://example.com", schemas.PageEntry, "Home", "", "")
	g.AddOrUpdatePage("https://example.com/list", schemas.PageList, "Announcements", "", "")
	g.AddOrUpdatePage("https://example.com", schemas.PageEntry, "Home Updated", "", "")

	home := g.Nodes()["https://example.com"]
	require.NotNil(t, home)
	assert.Equal(t, 2, home.VisitedCount)
	assert.Equal(t, "Home Updated", home.Title)
	assert.Len(t, g.History(), 3)
}

func TestNavGraphParentFixedOnRevisit(t *testing.T) {
	g := NewNavGraph(zaptest.NewLogger(t))

	g.AddOrUpdatePage("https://example.com", schemas.PageEntry, "Home", "", "")
	g.AddOrUpdatePage("https://example.com/list", schemas.PageList, "List", "", "")
	g.AddOrUpdatePage("https://example.com/detail/1", schemas.PageDetail, "Item", "", "")

	detail := g.Nodes()["https://example.com/detail/1"]
	require.NotNil(t, detail)
	assert.Equal(t, "https://example.com/list", detail.ParentURL)

	// Revisiting from a different page must not rewrite the parent.
	g.AddOrUpdatePage("https://example.com", schemas.PageEntry, "", "", "")
	g.AddOrUpdatePage("https://example.com/detail/1", schemas.PageDetail, "", "", "")
	assert.Equal(t, "https://example.com/list", detail.ParentURL)
	assert.Equal(t, 2, detail.VisitedCount)
}

func TestNavGraphEmptyTitleDoesNotClobber(t *testing.T) {
	g := NewNavGraph(zaptest.NewLogger(t))
	g.AddOrUpdatePage("https://example.com", schemas.PageEntry, "Home", "start", "")
	g.AddOrUpdatePage("https://example.com", schemas.PageEntry, "", "", "")

	node := g.Nodes()["https://example.com"]
	assert.Equal(t, "Home", node.Title)
	assert.Equal(t, "start", node.Description)
}

func TestNavigationContextDetailHint(t *testing.T) {
	g := NewNavGraph(zaptest.NewLogger(t))
	g.AddOrUpdatePage("https://example.com", schemas.PageEntry, "Home", "", "")
	g.AddOrUpdatePage("https://example.com/list", schemas.PageList, "Announcements", "", "")
	g.AddOrUpdatePage("https://example.com/detail/1", schemas.PageDetail, "Item 1", "", "")

	ctx := g.NavigationContext()
	assert.Contains(t, ctx, "[detail] Item 1")
	assert.Contains(t, ctx, "Use BACK to return to the list page (Announcements)")
	assert.Contains(t, ctx, "entry -> list -> detail")
}

func TestNavigationContextEmptyGraph(t *testing.T) {
	g := NewNavGraph(zaptest.NewLogger(t))
	assert.Contains(t, g.NavigationContext(), "no pages visited yet")
}

func TestClassifyURL(t *testing.T) {
	assert.Equal(t, schemas.PageList, ClassifyURL("https://example.com/search?q=x"))
	assert.Equal(t, schemas.PageList, ClassifyURL("https://example.com/disclosure"))
	assert.Equal(t, schemas.PageDetail, ClassifyURL("https://example.com/article/42"))
	assert.Equal(t, schemas.PageDetail, ClassifyURL("https://example.com/NOTICE/9"))
	assert.Equal(t, schemas.PageOther, ClassifyURL("https://example.com/about"))
}
