// Package nodelist resolves one slot per data key under a container, duplicating
// siblings when the markup holds fewer elements than the data asks for.
package nodelist

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/gofiber/fiber/v2/log"

	"codeless/internal/html"
	"codeless/internal/repeat"
)

// Slot is the set of nodes resolved for one call; empty when nothing matched
type Slot []html.Node

// Selector resolves a selector below a context node
type Selector interface {
	Select(selector string, context html.Node) ([]html.Node, error)
}

// Request describes one population
type Request struct {
	Container  html.Node   // Element whose children (or itself) provide the slots
	Calls      []string    // One entry per expected slot
	Positional bool        // Calls are list positions rather than selectors
	Spec       repeat.Spec // Completion algorithm
	SelfRepeat bool        // Repeat the container itself instead of its children
	Format     bool        // Copy whitespace around duplicates
}

// NodeList is an ordered list of slots consumed through Seek
type NodeList struct {
	slots      []Slot
	cursor     int
	found      int
	duplicated int
}

// Seek advances the cursor and returns the slot under it, empty once exhausted
func (l *NodeList) Seek() Slot {
	l.cursor++
	if l.cursor < 0 || l.cursor >= len(l.slots) {
		return nil
	}
	return l.slots[l.cursor]
}

// Len returns the number of slots
func (l *NodeList) Len() int {
	return len(l.slots)
}

// Found returns how many slots existed before completion
func (l *NodeList) Found() int {
	return l.found
}

// Duplicated returns how many nodes completion inserted
func (l *NodeList) Duplicated() int {
	return l.duplicated
}

// Slots returns a copy of the slot list
func (l *NodeList) Slots() []Slot {
	out := make([]Slot, len(l.slots))
	copy(out, l.slots)
	return out
}

// Populator builds node lists against one document
type Populator struct {
	doc     html.Document
	sel     Selector
	shuffle func(n int, swap func(i, j int))
}

// New creates a populator; sel resolves named calls
func New(doc html.Document, sel Selector) *Populator {
	return &Populator{doc: doc, sel: sel, shuffle: rand.Shuffle}
}

// WithShuffle replaces the shuffle source, mainly for deterministic tests
func (p *Populator) WithShuffle(fn func(n int, swap func(i, j int))) *Populator {
	p.shuffle = fn
	return p
}

// Populate fills a node list for req and completes it up to len(req.Calls)
func (p *Populator) Populate(req Request) (*NodeList, error) {
	if req.Container == nil {
		return nil, fmt.Errorf("nodelist: no container to populate")
	}

	l := &NodeList{cursor: -1}

	switch {
	case req.SelfRepeat:
		l.slots = append(l.slots, Slot{req.Container})

	case !req.Positional && len(req.Calls) > 0:
		for _, call := range req.Calls {
			nodes, err := p.sel.Select(call, req.Container)
			if err != nil {
				return nil, fmt.Errorf("failed to populate %s: %w", req.Container.Path(), err)
			}
			// kept even when empty so Seek stays aligned with the calls
			l.slots = append(l.slots, Slot(nodes))
		}

	default:
		for _, child := range req.Container.ChildNodes() {
			if child.Kind() == html.ElementNode {
				l.slots = append(l.slots, Slot{child})
			}
		}
		if len(l.slots) == 0 {
			l.slots = append(l.slots, Slot{p.subChild(req.Container, req.Format)})
		}
	}

	l.found = len(l.slots)

	if err := p.complete(l, req); err != nil {
		return nil, err
	}

	log.Debugf("nodelist: %s found=%d expected=%d duplicated=%d spec=%q",
		req.Container.Path(), l.found, len(req.Calls), l.duplicated, req.Spec.String())

	return l, nil
}

type move int

const (
	still move = iota
	forward
	backward
)

// complete duplicates nodes until every call has a slot
func (p *Populator) complete(l *NodeList, req Request) error {
	found, expected := l.found, len(req.Calls)
	spec := req.Spec

	if found < expected && !spec.Empty() && found > 0 {
		half := int(math.Round(float64(found) / 2))
		offset := 0
		if half*2 < found {
			offset = 1
		} else if half*2 > found {
			offset = -1
		}

		cursor, started := 0, false
		last := still

		for key := found; key < expected; key++ {
			before := false

			switch last {
			case forward:
				if cursor < found {
					cursor++
				}
			case backward:
				if cursor > 0 {
					cursor--
				} else {
					last = forward
				}
			}

			if !started || cursor == found {
				wrap := !spec.Has(repeat.Once) || key+found >= expected
				switch {
				case spec.Has(repeat.Simple) && wrap:
					cursor, last, started = 0, forward, true
				case spec.Has(repeat.Mirror) && wrap:
					cursor, last, started = found-1, backward, true
				}
				if !started {
					cursor, last, started = found-1, forward, true
				}
			}

			if spec.Padded() {
				middle := half + offset
				if spec.Has(repeat.InnerPaddedLeft) && found%2 == 0 && middle > 0 {
					middle--
				}
				cursor = middle
				before = true
			}

			if err := p.duplicateAt(l, cursor, before, req.Format); err != nil {
				return err
			}
		}

		// under once the list only holds full cycles when it is less than twice the original
		if spec.Wraps() && spec.Has(repeat.Justify) && (!spec.Has(repeat.Once) || found*2 > expected) {
			p.justify(l, expected, spec, req.Format)
		}
	}

	if spec.Has(repeat.Shuffle) && p.shuffle != nil {
		p.shuffle(len(l.slots), func(i, j int) {
			l.slots[i], l.slots[j] = l.slots[j], l.slots[i]
		})
	}

	return nil
}

// duplicateAt clones the node at cursor, either before that node or after the list end
func (p *Populator) duplicateAt(l *NodeList, cursor int, before bool, format bool) error {
	if cursor < 0 || cursor >= len(l.slots) || len(l.slots[cursor]) == 0 {
		return fmt.Errorf("nodelist: nothing to duplicate at position %d", cursor)
	}
	source := l.slots[cursor][0]

	if before {
		dup, err := p.duplicate(source, source, true, format)
		if err != nil {
			return err
		}
		l.slots = append(l.slots[:cursor], append([]Slot{{dup}}, l.slots[cursor:]...)...)
	} else {
		end := l.slots[len(l.slots)-1][0]
		dup, err := p.duplicate(source, end, false, format)
		if err != nil {
			return err
		}
		l.slots = append(l.slots, Slot{dup})
	}

	l.duplicated++
	return nil
}

// duplicate inserts a deep clone of node next to anchor, before it or after it.
// With format set the whitespace preceding node is copied along.
func (p *Populator) duplicate(node, anchor html.Node, before bool, format bool) (html.Node, error) {
	parent := anchor.Parent()
	if parent == nil {
		return nil, fmt.Errorf("nodelist: cannot duplicate detached node %s", node.Path())
	}

	var space html.Node
	if format {
		if prev := node.PrevSibling(); html.IsWhitespace(prev) {
			space = p.doc.CreateText(prev.Text())
		}
	}

	clone := p.doc.Clone(node)

	if before {
		p.doc.InsertBefore(parent, clone, anchor)
		if space != nil {
			p.doc.InsertBefore(parent, space, anchor)
		}
	} else {
		ref := anchor.NextSibling()
		if space != nil {
			p.doc.InsertBefore(parent, space, ref)
		}
		p.doc.InsertBefore(parent, clone, ref)
	}

	return clone, nil
}

// subChild turns a childless container into its own only child
func (p *Populator) subChild(container html.Node, format bool) html.Node {
	var lead, trail string
	if format {
		first, last := container.FirstChild(), container.LastChild()
		if first != nil {
			lead = "\n"
			if html.IsWhitespace(first) {
				lead = first.Text()
			}
		}
		if last != nil && html.IsWhitespace(last) && last.Text() != lead {
			trail = last.Text()
		}
	}

	clone := p.doc.Clone(container)
	container.Empty()

	if lead != "" {
		p.doc.AppendChild(container, p.doc.CreateText(lead))
	}
	p.doc.AppendChild(container, clone)
	if trail != "" {
		p.doc.AppendChild(container, p.doc.CreateText(trail))
	}

	return clone
}

// justify relocates part of the short repeat cycle so it is split across both ends.
// Relocated count is floor(remainder/2) where remainder = expected mod found.
func (p *Populator) justify(l *NodeList, expected int, spec repeat.Spec, format bool) {
	found := l.found
	remainder := expected % found
	patchCount := remainder / 2
	if remainder == 0 || patchCount == 0 {
		return
	}

	window := make([]Slot, found)
	copy(window, l.slots[:found])
	if spec.Has(repeat.Mirror) {
		// the window runs backwards after an odd number of full rounds
		if rounds := expected / found; rounds%2 != 0 {
			for i, j := 0, len(window)-1; i < j; i, j = i+1, j-1 {
				window[i], window[j] = window[j], window[i]
			}
		}
	}

	end := remainder + patchCount
	if end > found {
		end = found
	}
	patches := window[remainder:end]

	// clone every patch before removing anything, a patch may sit at the head
	for _, patch := range patches {
		tail := l.slots[len(l.slots)-1][0]
		clone, err := p.duplicate(patch[0], tail, false, format)
		if err != nil {
			log.Warnf("nodelist: justify skipped: %v", err)
			return
		}
		l.slots = append(l.slots, Slot{clone})
	}

	for range patches {
		head := l.slots[0][0]
		if format {
			if prev := head.PrevSibling(); html.IsWhitespace(prev) {
				p.doc.Remove(prev)
			}
		}
		p.doc.Remove(head)
		l.slots = l.slots[1:]
	}
}
