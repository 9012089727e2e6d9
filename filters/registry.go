// Package filters contains the built-in publish filters and publish callbacks.
// They register themselves in DefaultRegistry on init.
package filters

import (
	"fmt"
	"sort"

	"github.com/wansing/pressroom/core"
)

// Settings configure the built-in elements.
type Settings struct {
	TitleMax         int // runes
	BodyMin          int // runes of plain text
	BodyMax          int // runes of plain text
	Banned           []string
	AutoPublishStaff bool
}

func DefaultSettings() Settings {
	return Settings{
		TitleMax: 200,
		BodyMin:  10,
		BodyMax:  100000,
	}
}

// An Element creates a filter or a callback, or both.
type Element struct {
	Code           string
	Name           string
	CreateFilter   func(s Settings) core.PublishFilter
	CreateCallback func(s Settings) core.PublishCallback
}

type Registry map[string]*Element

func (reg Registry) Add(e *Element) {
	reg[e.Code] = e
}

func (reg Registry) All() []string {
	var all = make([]string, 0, len(reg))
	for code := range reg {
		all = append(all, code)
	}
	sort.Strings(all)
	return all
}

func (reg Registry) Get(code string) (*Element, bool) {
	e, ok := reg[code]
	return e, ok
}

// Pipeline creates a pipeline from the given elements. Each element sorts in by its order, not by its position in codes.
func (reg Registry) Pipeline(codes []string, s Settings) (*core.Pipeline, error) {
	var p = core.NewPipeline(nil, nil)
	for _, code := range codes {
		e, ok := reg.Get(code)
		if !ok {
			return nil, fmt.Errorf("publish filter %s not found", code)
		}
		if e.CreateFilter != nil {
			p.AddFilter(e.CreateFilter(s))
		}
		if e.CreateCallback != nil {
			p.AddCallback(e.CreateCallback(s))
		}
	}
	return p, nil
}

var DefaultRegistry = make(Registry)

func Register(e *Element) {
	DefaultRegistry.Add(e)
}
