package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"exam-duel-service/internal/domain"
)

// ErrDeliveryBlocked is returned for recipients configured to fail.
var ErrDeliveryBlocked = errors.New("delivery blocked")

// SentPoll records one poll handed to the Gateway.
type SentPoll struct {
	PollID    string
	Recipient string
	Poll      domain.Poll
}

// Gateway records outbound traffic instead of talking to a platform. Recipients
// can be blocked to exercise the broadcast fallback.
type Gateway struct {
	mu               sync.Mutex
	seq              int
	blocked          map[string]bool
	broadcastBlocked bool
	pollsBlocked     bool
	polls            []SentPoll
	messages         map[string][]string
}

func NewGateway() *Gateway {
	return &Gateway{
		blocked:  make(map[string]bool),
		messages: make(map[string][]string),
	}
}

// Block makes private sends to recipient fail until Unblock.
func (g *Gateway) Block(recipient string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blocked[recipient] = true
}

func (g *Gateway) Unblock(recipient string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.blocked, recipient)
}

// BlockBroadcast makes broadcast sends fail.
func (g *Gateway) BlockBroadcast(blocked bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcastBlocked = blocked
}

// BlockPolls makes every poll send fail while plain messages still go out.
func (g *Gateway) BlockPolls(blocked bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pollsBlocked = blocked
}

func (g *Gateway) SendPrivatePoll(_ context.Context, recipientID string, poll domain.Poll) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pollsBlocked || g.blocked[recipientID] {
		return "", ErrDeliveryBlocked
	}
	return g.recordPollLocked(recipientID, poll), nil
}

func (g *Gateway) SendBroadcastPoll(_ context.Context, poll domain.Poll) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pollsBlocked || g.broadcastBlocked {
		return "", ErrDeliveryBlocked
	}
	return g.recordPollLocked(domain.BroadcastRecipient, poll), nil
}

func (g *Gateway) SendPrivateMessage(_ context.Context, recipientID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.blocked[recipientID] {
		return ErrDeliveryBlocked
	}
	g.messages[recipientID] = append(g.messages[recipientID], text)
	return nil
}

func (g *Gateway) SendBroadcastMessage(_ context.Context, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.broadcastBlocked {
		return ErrDeliveryBlocked
	}
	g.messages[domain.BroadcastRecipient] = append(g.messages[domain.BroadcastRecipient], text)
	return nil
}

func (g *Gateway) recordPollLocked(recipient string, poll domain.Poll) string {
	g.seq++
	id := "poll-" + strconv.Itoa(g.seq)
	g.polls = append(g.polls, SentPoll{PollID: id, Recipient: recipient, Poll: poll})
	return id
}

// Polls returns every poll sent so far, oldest first.
func (g *Gateway) Polls() []SentPoll {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]SentPoll(nil), g.polls...)
}

// LastPollFor returns the most recent poll delivered to recipient.
func (g *Gateway) LastPollFor(recipient string) (SentPoll, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.polls) - 1; i >= 0; i-- {
		if g.polls[i].Recipient == recipient {
			return g.polls[i], true
		}
	}
	return SentPoll{}, false
}

// Messages returns the plain messages delivered to recipient.
func (g *Gateway) Messages(recipient string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.messages[recipient]...)
}
