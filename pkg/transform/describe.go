package transform

import (
	"fmt"
	"strings"
)

// Describe renders a rule tree on one line, e.g.
// compose(substitute[.*|.*], union(insert[a|.*], delete[.*|.*])).
func Describe(r Rule) string {
	var b strings.Builder
	describe(&b, r)
	return b.String()
}

func describe(b *strings.Builder, r Rule) {
	switch n := r.(type) {
	case *Leaf:
		fmt.Fprintf(b, "%s[%s|%s]", n.Operator(), n.left, n.right)
	case *Seq:
		writeList(b, "compose", n.rules)
	case *Alt:
		writeList(b, "union", n.rules)
	case nil:
		b.WriteString("<nil>")
	}
}

func writeList(b *strings.Builder, name string, rules []Rule) {
	b.WriteString(name)
	b.WriteByte('(')
	for i, r := range rules {
		if i > 0 {
			b.WriteString(", ")
		}
		describe(b, r)
	}
	b.WriteByte(')')
}
