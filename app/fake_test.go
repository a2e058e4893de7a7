package app

import (
	"strconv"
	"sync"

	tele "gopkg.in/telebot.v4"
)

type outbound struct {
	to   int64
	what interface{}
	opts []interface{}
}

type fakeBot struct {
	mu    sync.Mutex
	calls []outbound
}

func chatID(r tele.Recipient) int64 {
	id, _ := strconv.ParseInt(r.Recipient(), 10, 64)
	return id
}

func (f *fakeBot) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, outbound{to: chatID(to), what: what, opts: opts})
	return &tele.Message{ID: len(f.calls)}, nil
}

func (f *fakeBot) Copy(to tele.Recipient, msg tele.Editable, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, outbound{to: chatID(to), what: msg, opts: opts})
	return &tele.Message{ID: 900 + len(f.calls)}, nil
}

func (f *fakeBot) textsTo(id int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if s, ok := c.what.(string); ok && c.to == id {
			out = append(out, s)
		}
	}
	return out
}
