// Package contacts resolves the sourcing-team contact a visitor names on the
// form to that person's email address.
package contacts

import "strings"

// Domain is the mail domain of every directory entry.
const Domain = "globalbasesourcing.com"

type entry struct {
	name  string
	email string
}

// directory is keyed by normalized display name. Order matters for the
// first-token fallback: earlier entries win.
var directory = []entry{
	{"ted", "ted@" + Domain},
	{"anna lee", "anna@" + Domain},
	{"rahul sharma", "rahul@" + Domain},
	{"li wei", "liwei@" + Domain},
	{"maria garcia", "maria@" + Domain},
	{"kenji tanaka", "kenji@" + Domain},
	{"fatima khan", "fatima@" + Domain},
	{"olivier dubois", "olivier@" + Domain},
}

var honorifics = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "miss": true,
	"dr": true, "prof": true, "sir": true, "madam": true,
}

// Normalize lower-cases name, removes periods, collapses whitespace and drops
// one leading honorific.
func Normalize(name string) string {
	fields := strings.Fields(strings.ReplaceAll(strings.ToLower(name), ".", ""))
	if len(fields) > 1 && honorifics[fields[0]] {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

// Lookup returns the email for name, or "" when nobody matches. A full-name
// match is tried first, then the first token of name against the first token
// of each entry.
func Lookup(name string) string {
	key := Normalize(name)
	if key == "" {
		return ""
	}
	for _, e := range directory {
		if e.name == key {
			return e.email
		}
	}
	first, _, _ := strings.Cut(key, " ")
	for _, e := range directory {
		entryFirst, _, _ := strings.Cut(e.name, " ")
		if entryFirst == first {
			return e.email
		}
	}
	return ""
}
