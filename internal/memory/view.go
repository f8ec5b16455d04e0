package memory

import "fmt"

// CardView is what a player may see of a card.
type CardView struct {
	ID        int    `json:"id"`
	Toggled   bool   `json:"toggled"`
	Matched   bool   `json:"matched"`
	Clickable bool   `json:"clickable"`
	Image     string `json:"image,omitempty"`
}

// View renders one card for the given selection. The face image stays
// hidden until the card is selected or matched.
func View(c Card, sel Selection, locked bool) CardView {
	v := CardView{
		ID:        c.ID,
		Toggled:   sel.Has(c.ID),
		Matched:   c.Matched,
		Clickable: !locked && !c.Matched,
	}
	if v.Toggled || v.Matched {
		v.Image = c.Image
	}
	return v
}

func (s *Session) Views() []CardView {
	views := make([]CardView, len(s.Cards))
	for i, c := range s.Cards {
		views[i] = View(c, s.Selection, s.Locked())
	}
	return views
}

// DefaultImages returns n image references of the form /cards/NN.svg.
func DefaultImages(n int) []string {
	imgs := make([]string, n)
	for i := range imgs {
		imgs[i] = fmt.Sprintf("/cards/%02d.svg", i+1)
	}
	return imgs
}
