package wizard

import "github.com/bananaslides/deckwizard/internal/model"

// Overwrite kinds guarded by a confirmation
type OverwriteKind string

const (
	OverwriteOutline      OverwriteKind = "outline"
	OverwriteDescriptions OverwriteKind = "descriptions"
	OverwriteImages       OverwriteKind = "images"
)

// Consequence messages shown before a destructive regeneration
var overwriteMessages = map[OverwriteKind]string{
	OverwriteOutline:      "some pages already have an outline, regenerating will replace it",
	OverwriteDescriptions: "some pages already have a description, regenerating will replace it",
	OverwriteImages:       "some pages already have an image, regenerating will add a new version",
}

// ConsequenceMessage describes what confirming an overwrite of kind will do
func ConsequenceMessage(kind OverwriteKind) string {
	return overwriteMessages[kind]
}

// WouldOverwriteOutline reports whether any page has outline content
func WouldOverwriteOutline(p *model.Project) bool {
	if p == nil {
		return false
	}
	for i := range p.Pages {
		if !p.Pages[i].OutlineContent.IsEmpty() {
			return true
		}
	}
	return false
}

// WouldOverwriteDescriptions reports whether any page has description content
func WouldOverwriteDescriptions(p *model.Project) bool {
	if p == nil {
		return false
	}
	for i := range p.Pages {
		if p.Pages[i].HasDescription() {
			return true
		}
	}
	return false
}

// WouldOverwriteImages reports whether any targeted page already has an
// image. An empty pageIDs targets every page.
func WouldOverwriteImages(p *model.Project, pageIDs []string) bool {
	if p == nil {
		return false
	}
	targets := make(map[string]bool, len(pageIDs))
	for _, id := range pageIDs {
		targets[id] = true
	}
	for i := range p.Pages {
		if len(targets) > 0 && !targets[p.Pages[i].ID] {
			continue
		}
		if p.Pages[i].HasImage() {
			return true
		}
	}
	return false
}

// WouldOverwrite dispatches to the predicate for kind
func WouldOverwrite(kind OverwriteKind, p *model.Project, pageIDs []string) bool {
	switch kind {
	case OverwriteOutline:
		return WouldOverwriteOutline(p)
	case OverwriteDescriptions:
		return WouldOverwriteDescriptions(p)
	case OverwriteImages:
		return WouldOverwriteImages(p, pageIDs)
	}
	return false
}
