package upnp

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultSubscriptionTimeout = 1800 * time.Second
	notifyTimeout              = 5 * time.Second

	// maxPendingEvents bounds the queue of a subscriber that stopped
	// answering. The subscription is cancelled once the queue is full.
	maxPendingEvents = 64
)

// subscription is one GENA subscriber of a service.
//
// Events are queued in sequence order and sent by at most one sender at a
// time, so a subscriber sees SEQ 0, 1, 2 without gaps or reordering.
type subscription struct {
	sid       string
	serviceID string
	callbacks []string
	expires   time.Time
	seq       uint32

	pending []queuedEvent
	sending bool
	closed  bool
}

type queuedEvent struct {
	seq  uint32
	body []byte
}

// enqueue stamps body with the next sequence number. It reports whether a
// sender must be started. Callers hold the subscriptions lock.
func (sub *subscription) enqueue(body []byte) bool {
	sub.pending = append(sub.pending, queuedEvent{seq: sub.seq, body: body})
	sub.seq++
	if sub.sending {
		return false
	}
	sub.sending = true
	return true
}

// subscriptions holds the subscribers of one device.
type subscriptions struct {
	mu   sync.Mutex
	subs map[string]*subscription
}

func newSubscriptions() *subscriptions {
	return &subscriptions{subs: make(map[string]*subscription)}
}

func newSID() string {
	return "uuid:" + uuid.NewString()
}

// add registers an accepted subscriber and queues its initial event as
// SEQ 0. The returned subscription needs a sender.
func (s *subscriptions) add(sid, serviceID string, callbacks []string, timeout time.Duration, initial []byte) *subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscription{
		sid:       sid,
		serviceID: serviceID,
		callbacks: callbacks,
		expires:   time.Now().Add(timeout),
	}
	sub.enqueue(initial)
	s.subs[sid] = sub
	return sub
}

func (s *subscriptions) renew(sid, serviceID string, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[sid]
	if !ok || sub.serviceID != serviceID {
		return false
	}
	if time.Now().After(sub.expires) {
		s.drop(sub)
		return false
	}
	sub.expires = time.Now().Add(timeout)
	return true
}

func (s *subscriptions) remove(sid, serviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[sid]
	if !ok || sub.serviceID != serviceID {
		return false
	}
	s.drop(sub)
	return true
}

// clear cancels every subscription and discards queued events.
func (s *subscriptions) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		s.drop(sub)
	}
}

// drop unregisters sub. Callers hold s.mu.
func (s *subscriptions) drop(sub *subscription) {
	delete(s.subs, sub.sid)
	sub.closed = true
	sub.pending = nil
}

// publish queues body for every live subscriber of the service. It returns
// the subscriptions that need a sender started and the SIDs cancelled
// because their queue overflowed. Expired entries are dropped.
func (s *subscriptions) publish(serviceID string, body []byte) (start []*subscription, overflowed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, sub := range s.subs {
		if now.After(sub.expires) {
			s.drop(sub)
			continue
		}
		if sub.serviceID != serviceID {
			continue
		}
		if len(sub.pending) >= maxPendingEvents {
			s.drop(sub)
			overflowed = append(overflowed, sub.sid)
			continue
		}
		if sub.enqueue(body) {
			start = append(start, sub)
		}
	}
	return start, overflowed
}

// next pops the oldest queued event of sub. When the queue is empty or the
// subscription is gone it releases the sender and returns false.
func (s *subscriptions) next(sub *subscription) (notifyTarget, []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.closed || len(sub.pending) == 0 {
		sub.sending = false
		return notifyTarget{}, nil, false
	}
	ev := sub.pending[0]
	sub.pending[0] = queuedEvent{}
	sub.pending = sub.pending[1:]
	return notifyTarget{sid: sub.sid, callbacks: sub.callbacks, seq: ev.seq}, ev.body, true
}

func (s *subscriptions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

type notifyTarget struct {
	sid       string
	callbacks []string
	seq       uint32
}

// parseCallbacks extracts the URLs from a CALLBACK header of the form
// "<http://a/><http://b/>".
func parseCallbacks(h string) []string {
	var urls []string
	for {
		start := strings.IndexByte(h, '<')
		if start < 0 {
			return urls
		}
		end := strings.IndexByte(h[start:], '>')
		if end < 0 {
			return urls
		}
		u := h[start+1 : start+end]
		if strings.HasPrefix(u, "http://") {
			urls = append(urls, u)
		}
		h = h[start+end+1:]
	}
}

// parseTimeout reads a TIMEOUT header of the form "Second-N" or "Second-infinite".
func parseTimeout(h string) time.Duration {
	v, ok := strings.CutPrefix(strings.TrimSpace(h), "Second-")
	if !ok || v == "infinite" {
		return defaultSubscriptionTimeout
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultSubscriptionTimeout
	}
	return time.Duration(n) * time.Second
}

// renderPropertySet builds a GENA event body.
func renderPropertySet(vars []Arg) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, `<e:propertyset xmlns:e="%s">`, EventNamespace)
	for _, v := range vars {
		buf.WriteString("<e:property><")
		buf.WriteString(v.Name)
		buf.WriteString(">")
		_ = xml.EscapeText(&buf, []byte(v.Value))
		buf.WriteString("</")
		buf.WriteString(v.Name)
		buf.WriteString("></e:property>")
	}
	buf.WriteString("</e:propertyset>")
	return buf.Bytes()
}

// sendNotify delivers body to the first callback URL that accepts it.
func sendNotify(ctx context.Context, client *http.Client, t notifyTarget, body []byte) error {
	var lastErr error
	for _, cb := range t.callbacks {
		req, err := http.NewRequestWithContext(ctx, "NOTIFY", cb, bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
		req.Header.Set("NT", "upnp:event")
		req.Header.Set("NTS", "upnp:propchange")
		req.Header.Set("SID", t.sid)
		req.Header.Set("SEQ", strconv.FormatUint(uint64(t.seq), 10))

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("callback %s returned %s", cb, resp.Status)
	}
	if lastErr == nil {
		return fmt.Errorf("subscription %s has no callback", t.sid)
	}
	return lastErr
}
