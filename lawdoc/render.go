package lawdoc

import (
	"fmt"
	"strings"
)

// Name is the article's heading, e.g. "Điều 5".
func (a *Article) Name() string {
	return "Điều " + a.Number
}

// Text renders the article, one line per clause and point. Annotated text
// repeats the enclosing references on every line ("Khoản 2. Điều 5 ...",
// "Điểm a) Khoản 2 Điều 5 ...") so a line still reads correctly on its own.
func (a *Article) Text(annotated bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s. %s\n", a.Name(), a.Content)
	for _, c := range a.Clauses {
		if annotated {
			fmt.Fprintf(&b, "Khoản %s. %s %s\n", c.Number, a.Name(), c.Content)
		} else {
			fmt.Fprintf(&b, "%s. %s\n", c.Number, c.Content)
		}

		for _, p := range c.Points {
			if annotated {
				fmt.Fprintf(&b, "Điểm %s) Khoản %s %s %s\n", p.Letter, c.Number, a.Name(), p.Content)
			} else {
				fmt.Fprintf(&b, "%s) %s\n", p.Letter, p.Content)
			}
		}
	}

	return b.String()
}
