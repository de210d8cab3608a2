package service

import (
	"thread_harvester/internal/config"
)

// Field locates one message attribute inside a message container. With Attr
// set the attribute value is read instead of the element text.
type Field struct {
	Selector string
	Attr     string
}

// Layout describes one thread page markup variant.
type Layout struct {
	Name      string
	Container string
	Author    Field
	Timestamp Field
	Body      Field
	Heading   string
}

func DefaultLayouts() []Layout {
	return []Layout{
		{
			Name:      "expanded-message",
			Container: "div.expanded-message",
			Author:    Field{Selector: "u"},
			Timestamp: Field{Selector: "span[title]", Attr: "title"},
			Body:      Field{Selector: "div.user-content"},
		},
		{
			Name:      "vcard",
			Container: "div.vcard.row",
			Author:    Field{Selector: "span.fn"},
			Timestamp: Field{Selector: "time", Attr: "datetime"},
			Body:      Field{Selector: "div.msg-body"},
			Heading:   "h1#topic-title",
		},
	}
}

// LayoutsFromConfig converts configured layouts, falling back to the
// defaults when none are configured.
func LayoutsFromConfig(cfg []config.LayoutConfig) []Layout {
	if len(cfg) == 0 {
		return DefaultLayouts()
	}

	layouts := make([]Layout, 0, len(cfg))
	for _, c := range cfg {
		name := c.Name
		if name == "" {
			name = c.Container
		}
		layouts = append(layouts, Layout{
			Name:      name,
			Container: c.Container,
			Author:    Field(c.Author),
			Timestamp: Field(c.Timestamp),
			Body:      Field(c.Body),
			Heading:   c.Heading,
		})
	}
	return layouts
}
