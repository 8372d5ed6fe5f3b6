package wizard

import (
	"fmt"
	"strings"

	"github.com/bananaslides/deckwizard/internal/model"
)

// Step is a wizard stage, 1 through 5
type Step int

const (
	StepFillContent Step = iota + 1
	StepSelectTemplate
	StepOutlineEditor
	StepDetailEditor
	StepSlidePreview
)

var stepNames = map[Step]string{
	StepFillContent:    "fill-content",
	StepSelectTemplate: "select-template",
	StepOutlineEditor:  "outline",
	StepDetailEditor:   "detail",
	StepSlidePreview:   "preview",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Valid reports whether s is one of the five steps
func (s Step) Valid() bool {
	return s >= StepFillContent && s <= StepSlidePreview
}

// ParseStep accepts a step name or its number
func ParseStep(v string) (Step, bool) {
	for step, name := range stepNames {
		if v == name || v == fmt.Sprint(int(step)) {
			return step, true
		}
	}
	return 0, false
}

// Gate is the outcome of a forward-navigation check
type Gate struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

var open = Gate{Allowed: true}

func closed(reason string) Gate {
	return Gate{Reason: reason}
}

// CanLeaveFillContent requires content and no reference file still parsing
func CanLeaveFillContent(content string, refs []model.ReferenceFile) Gate {
	if strings.TrimSpace(content) == "" {
		return closed("enter some content first")
	}
	for _, f := range refs {
		if f.ParseStatus.InProgress() {
			return closed("wait for reference files to finish parsing")
		}
	}
	return open
}

// CanSubmitTemplate requires the step one draft to still be present
func CanSubmitTemplate(d Draft) Gate {
	if !d.CreationType.Valid() || strings.TrimSpace(d.Content) == "" {
		return closed("missing content, start over from step one")
	}
	return open
}

// CanLeaveOutline requires at least one page
func CanLeaveOutline(p *model.Project) Gate {
	if p == nil || len(p.Pages) == 0 {
		return closed("add or generate at least one page")
	}
	return open
}

// CanLeaveDetail requires every page to carry a description
func CanLeaveDetail(p *model.Project) Gate {
	if p == nil || len(p.Pages) == 0 {
		return closed("the project has no pages")
	}
	for i := range p.Pages {
		if !p.Pages[i].HasDescription() {
			return closed(fmt.Sprintf("page %d has no description", i+1))
		}
	}
	return open
}

// CanExport requires images on every page, or a non-empty selection in
// multi-select mode
func CanExport(p *model.Project, multiSelect bool, selected []string) Gate {
	if p == nil || len(p.Pages) == 0 {
		return closed("the project has no pages")
	}
	if multiSelect {
		if len(selected) == 0 {
			return closed("select at least one page to export")
		}
		return open
	}
	for i := range p.Pages {
		if !p.Pages[i].HasImage() {
			return closed(fmt.Sprintf("page %d has no image yet", i+1))
		}
	}
	return open
}

// TargetStep is where a newly created project lands
func TargetStep(t model.CreationType) Step {
	if t == model.CreationTypeDescription {
		return StepDetailEditor
	}
	return StepOutlineEditor
}

// ResumeStep picks the furthest step a project has content for
func ResumeStep(p *model.Project) Step {
	if p == nil {
		return StepFillContent
	}
	hasDescription := false
	for i := range p.Pages {
		if p.Pages[i].HasImage() {
			return StepSlidePreview
		}
		if p.Pages[i].HasDescription() {
			hasDescription = true
		}
	}
	if hasDescription || p.CreationType == model.CreationTypeDescription {
		return StepDetailEditor
	}
	return StepOutlineEditor
}
