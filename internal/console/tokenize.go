package console

import "strings"

// splitLine splits a command line into words. Single or double quotes group
// words. A backslash escapes a following quote, backslash or blank and is
// kept literally before anything else, so Windows paths survive:
//
//	add 07:30 start "Morning assembly"
//	sound start local C:\bells\a.wav
func splitLine(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out   []string
		buf   strings.Builder
		quote byte
		esc   bool
		open  bool // a quoted empty string still yields a word
	)
	flush := func() {
		if buf.Len() > 0 || open {
			out = append(out, buf.String())
			buf.Reset()
		}
		open = false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case esc:
			buf.WriteByte(ch)
			esc = false
		case ch == '\\' && i+1 < len(s) && escapable(s[i+1]):
			esc = true
		case quote != 0:
			if ch == quote {
				quote = 0
				continue
			}
			buf.WriteByte(ch)
		case ch == '"' || ch == '\'':
			quote = ch
			open = true
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}

func escapable(ch byte) bool {
	switch ch {
	case '"', '\'', '\\', ' ', '\t':
		return true
	}
	return false
}
