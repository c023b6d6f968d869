package session

import (
	"strings"
	"unicode"
)

// Command is one parsed control line.
type Command struct {
	Verb Verb
	Name string // verb token as sent, uppercased
	Arg  string // remainder of the line, inner whitespace preserved
}

// ParseCommand trims the line, splits it on the first whitespace run and
// uppercases the verb token.
func ParseCommand(line string) Command {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}
	}
	name, arg := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		name = line[:i]
		arg = strings.TrimLeftFunc(line[i:], unicode.IsSpace)
	}
	name = strings.ToUpper(name)
	return Command{Verb: ParseVerb(name), Name: name, Arg: arg}
}
