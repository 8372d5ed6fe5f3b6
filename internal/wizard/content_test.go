package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bananaslides/deckwizard/internal/model"
)

func TestExtractImageURLs(t *testing.T) {
	md := "Intro ![a](https://img/a.png)\n![b](http://img/b.jpg) ![rel](/uploads/c.png) ![](  https://img/d.png  )"
	assert.Equal(t, []string{"https://img/a.png", "http://img/b.jpg", "https://img/d.png"}, ExtractImageURLs(md))
	assert.Nil(t, ExtractImageURLs("no images"))
}

func TestRemoveImage(t *testing.T) {
	md := "line one\n\n![image](https://cdn/x.png)\n\n\nline two"
	assert.Equal(t, "line one\n\nline two", RemoveImage(md, "https://cdn/x.png"))
	assert.Equal(t, "keep ![image](https://cdn/y.png)", RemoveImage("keep ![image](https://cdn/y.png)", "https://cdn/x.png"))
}

func TestOutlineMarkdown(t *testing.T) {
	p := &model.Project{Pages: []model.Page{
		{Part: "Opening", OutlineContent: model.OutlineContent{Title: "Hello", Points: []string{"one", " ", "two"}}},
		{Part: "Opening", OutlineContent: model.OutlineContent{Title: ""}},
		{Part: "Body", OutlineContent: model.OutlineContent{Title: "Data"}},
	}}
	want := "# Opening\n\n## 1. Hello\n\n- one\n- two\n\n## 2. Page 2\n\n# Body\n\n## 3. Data\n"
	assert.Equal(t, want, OutlineMarkdown(p))
}

func TestDescriptionsMarkdown(t *testing.T) {
	p := &model.Project{Pages: []model.Page{
		{OutlineContent: model.OutlineContent{Title: "Hello"}, DescriptionContent: &model.DescriptionContent{TextContent: []string{"a", "b"}}},
		{OutlineContent: model.OutlineContent{Title: "Empty"}},
	}}
	want := "## 1. Hello\n\na\nb\n\n## 2. Empty\n\n_No description yet_\n"
	assert.Equal(t, want, DescriptionsMarkdown(p))
}
