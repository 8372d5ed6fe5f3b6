package wizard

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bananaslides/deckwizard/internal/client"
	"github.com/bananaslides/deckwizard/internal/model"
)

var (
	imageMarkdown = regexp.MustCompile(`!\[.*?\]\((.*?)\)`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// ExtractImageURLs returns the http(s) image links of a markdown text in order
func ExtractImageURLs(markdown string) []string {
	var urls []string
	for _, m := range imageMarkdown.FindAllStringSubmatch(markdown, -1) {
		u := strings.TrimSpace(m[1])
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			urls = append(urls, u)
		}
	}
	return urls
}

// RemoveImage deletes every markdown image pointing at url
func RemoveImage(markdown, url string) string {
	re := regexp.MustCompile(`!\[[^\]]*\]\(` + regexp.QuoteMeta(url) + `\)`)
	out := re.ReplaceAllString(markdown, "")
	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// AppendImage adds a markdown image on its own line
func AppendImage(markdown, url string) string {
	img := fmt.Sprintf("![image](%s)", url)
	if markdown == "" {
		return img
	}
	if !strings.HasSuffix(markdown, "\n") {
		markdown += "\n"
	}
	return markdown + img
}

// MaxReferenceFileSize is the largest reference document accepted
const MaxReferenceFileSize = 200 << 20

var referenceExtensions = map[string]bool{
	"pdf": true, "docx": true, "pptx": true, "doc": true, "ppt": true,
	"xlsx": true, "xls": true, "csv": true, "txt": true, "md": true,
}

// CheckReferenceFile validates a reference document before upload
func CheckReferenceFile(u *model.Upload) error {
	if u == nil || len(u.Data) == 0 {
		return &client.ValidationError{Field: "file", Message: "file is empty"}
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(u.Filename)), ".")
	if !referenceExtensions[ext] {
		return &client.ValidationError{Field: "file", Message: fmt.Sprintf("unsupported file type %q", ext)}
	}
	if len(u.Data) > MaxReferenceFileSize {
		return &client.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file too large: %.1fMB, the limit is 200MB", float64(len(u.Data))/(1<<20)),
		}
	}
	return nil
}

// OutlineMarkdown renders the outline of every page
func OutlineMarkdown(p *model.Project) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	part := ""
	for i, page := range p.Pages {
		if page.Part != "" && page.Part != part {
			part = page.Part
			fmt.Fprintf(&b, "# %s\n\n", part)
		}
		title := page.OutlineContent.Title
		if strings.TrimSpace(title) == "" {
			title = fmt.Sprintf("Page %d", i+1)
		}
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, title)
		points := 0
		for _, point := range page.OutlineContent.Points {
			if strings.TrimSpace(point) == "" {
				continue
			}
			fmt.Fprintf(&b, "- %s\n", point)
			points++
		}
		if points > 0 {
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// DescriptionsMarkdown renders each page's title and description
func DescriptionsMarkdown(p *model.Project) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	for i, page := range p.Pages {
		title := page.OutlineContent.Title
		if strings.TrimSpace(title) == "" {
			title = fmt.Sprintf("Page %d", i+1)
		}
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, title)
		if page.HasDescription() {
			b.WriteString(strings.TrimSpace(page.DescriptionContent.String()))
		} else {
			b.WriteString("_No description yet_")
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
