package server

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/papercomputeco/chatterbox/pkg/llm"
)

// roleStyle is how a speaker is presented on the page.
type roleStyle struct {
	Label  string
	Avatar string
	Class  string
}

var roleStyles = map[llm.Role]roleStyle{
	llm.RoleUser:      {Label: "You", Avatar: "🧑", Class: "turn-user"},
	llm.RoleAssistant: {Label: "Assistant", Avatar: "🤖", Class: "turn-assistant"},
}

func styleFor(role llm.Role) roleStyle {
	if style, ok := roleStyles[role]; ok {
		return style
	}
	return roleStyle{Label: string(role), Avatar: "💬", Class: "turn-" + string(role)}
}

// renderedTurn is a stored turn ready for the page template.
type renderedTurn struct {
	Style roleStyle
	HTML  template.HTML
}

// renderer turns markdown replies into sanitized HTML.
type renderer struct {
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

func newRenderer() *renderer {
	return &renderer{
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:   bluemonday.UGCPolicy(),
	}
}

// HTML renders content as markdown and strips anything unsafe.
func (r *renderer) HTML(content string) (string, error) {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("could not render markdown: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}

// Turns renders every turn in order.
func (r *renderer) Turns(turns []llm.Turn) ([]renderedTurn, error) {
	out := make([]renderedTurn, 0, len(turns))
	for _, turn := range turns {
		html, err := r.HTML(turn.Content)
		if err != nil {
			return nil, err
		}
		out = append(out, renderedTurn{
			Style: styleFor(turn.Role),
			HTML:  template.HTML(html), //nolint:gosec // sanitized by bluemonday
		})
	}
	return out, nil
}
