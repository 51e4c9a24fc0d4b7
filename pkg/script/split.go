// Package script runs SQL script files against Edge SQL.
//
// Split turns script text into statements; Runner sends them in groups
// sized by a chunk.Planner so each request stays under the payload limit.
package script

import (
	"bufio"
	"io"
	"strings"

	"github.com/ajitpratap0/edgesql/pkg/errors"
)

type lexState int

const (
	stNormal lexState = iota
	stSingle
	stDouble
	stBracket
	stLineComment
	stBlockComment
)

// Split reads SQL text and returns its statements, each terminated by a
// semicolon. Comments are removed. Bare transaction control statements
// are dropped since each group is sent on its own. A CREATE TRIGGER body
// is kept whole up to its END.
func Split(r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)
	var (
		out   []string
		cur   strings.Builder
		state = stNormal
		line  = 1
		start = 1
	)

	emit := func() {
		stmt := strings.TrimSpace(cur.String())
		cur.Reset()
		if stmt == "" || stmt == ";" || isTransactionControl(stmt) {
			return
		}
		if !strings.HasSuffix(stmt, ";") {
			stmt += ";"
		}
		out = append(out, stmt)
	}

	for {
		c, _, err := br.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to read script")
		}
		if c == '\n' {
			line++
		}

		switch state {
		case stLineComment:
			if c == '\n' {
				state = stNormal
				cur.WriteByte('\n')
			}
			continue
		case stBlockComment:
			if c == '*' {
				if next, _, err := br.ReadRune(); err == nil {
					if next == '/' {
						state = stNormal
						cur.WriteByte(' ')
					} else {
						_ = br.UnreadRune()
					}
				}
			}
			continue
		case stSingle:
			cur.WriteRune(c)
			if c == '\'' {
				state = stNormal
			}
			continue
		case stDouble:
			cur.WriteRune(c)
			if c == '"' {
				state = stNormal
			}
			continue
		case stBracket:
			cur.WriteRune(c)
			if c == ']' {
				state = stNormal
			}
			continue
		}

		switch c {
		case '\'':
			state = stSingle
		case '"':
			state = stDouble
		case '[':
			state = stBracket
		case '-', '/':
			want := '-'
			if c == '/' {
				want = '*'
			}
			if next, _, err := br.ReadRune(); err == nil {
				if next == want {
					if c == '-' {
						state = stLineComment
					} else {
						state = stBlockComment
					}
					continue
				}
				_ = br.UnreadRune()
			}
		case ';':
			cur.WriteRune(c)
			if inTriggerBody(cur.String()) {
				continue
			}
			emit()
			start = line
			continue
		}
		if cur.Len() == 0 && (c == ' ' || c == '\t' || c == '\r' || c == '\n') {
			start = line
			continue
		}
		cur.WriteRune(c)
	}

	switch state {
	case stSingle, stDouble, stBracket:
		return nil, errors.Newf(errors.ErrorTypeValidation, "unterminated quoted text in statement starting at line %d", start).
			WithDetail("line", start)
	case stBlockComment:
		return nil, errors.New(errors.ErrorTypeValidation, "unterminated block comment")
	}
	emit()
	return out, nil
}

func normalize(stmt string) string {
	return strings.ToUpper(strings.Join(strings.Fields(strings.TrimSuffix(stmt, ";")), " "))
}

func isTransactionControl(stmt string) bool {
	switch normalize(stmt) {
	case "BEGIN", "BEGIN TRANSACTION", "BEGIN DEFERRED TRANSACTION", "BEGIN IMMEDIATE TRANSACTION",
		"COMMIT", "COMMIT TRANSACTION", "END", "END TRANSACTION":
		return true
	}
	return false
}

// inTriggerBody reports whether stmt is a CREATE TRIGGER whose END has not
// been reached yet.
func inTriggerBody(stmt string) bool {
	n := normalize(stmt)
	if !strings.HasPrefix(n, "CREATE ") {
		return false
	}
	head := n
	if i := strings.Index(n, " BEGIN"); i >= 0 {
		head = n[:i]
	} else {
		return false
	}
	if !strings.Contains(head+" ", " TRIGGER ") {
		return false
	}
	return !strings.HasSuffix(n, " END")
}
