package logger

import (
	"strconv"
	"strings"
	"sync/atomic"

	textutil "querydeck/internal/pkg/text"
)

// exchangeBodyLimit caps how much of a request or response body one log line carries.
const exchangeBodyLimit = 2000

var exchangeDump atomic.Bool

// EnableExchangeDump turns on debug logging of backend request and response bodies.
func EnableExchangeDump(enabled bool) {
	exchangeDump.Store(enabled)
}

type exchangeSection struct {
	Title string
	Body  string
}

func logExchange(kind, slot, target string, sections []exchangeSection) {
	if !exchangeDump.Load() {
		return
	}
	var b strings.Builder
	b.WriteString("[BACKEND]")
	for _, tag := range []string{kind, slot} {
		if tag == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(tag)
		b.WriteString("]")
	}
	if target != "" {
		b.WriteString(" ")
		b.WriteString(target)
	}
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "BODY"
		}
		b.WriteString(" ")
		b.WriteString(t)
		b.WriteString("=")
		b.WriteString(textutil.Truncate(strings.TrimSpace(sec.Body), exchangeBodyLimit))
	}
	Debugf("%s", b.String())
}

// LogExchangeRequest records an outbound backend call when exchange dumping is on.
func LogExchangeRequest(slot, method, url, body string) {
	sections := []exchangeSection{}
	if strings.TrimSpace(body) != "" {
		sections = append(sections, exchangeSection{Title: "REQUEST", Body: body})
	}
	logExchange("request", slot, method+" "+url, sections)
}

// LogExchangeResponse records the raw body a backend call returned.
func LogExchangeResponse(slot, url string, status int, raw string) {
	sections := []exchangeSection{{Title: "RAW", Body: raw}}
	logExchange("response", slot, url+" status="+strconv.Itoa(status), sections)
}
