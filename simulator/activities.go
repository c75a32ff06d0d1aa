package simulator

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// actionResult mirrors the JSON body of every form action.
type actionResult struct {
	OK    bool `json:"ok"`
	Error *struct {
		Message string            `json:"message"`
		Errors  map[string]string `json:"errors"`
	} `json:"error"`
	Data json.RawMessage `json:"data"`
}

func (r *actionResult) message() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Message
}

// SimulateActivities drives messaging and request acceptance until ctx is done.
func (s *Simulator) SimulateActivities(ctx context.Context) {
	log.Printf("Starting activities simulation...")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulateMessages(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulateAccepts(ctx)
	}()

	wg.Wait()
}

func (s *Simulator) simulateMessages(ctx context.Context) {
	tickInterval := 500 * time.Millisecond
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	// Probability that a given user sends a message during one tick.
	perTick := s.config.MessageFrequency / 3600.0 * tickInterval.Seconds()

	jobs := make(chan *SimulatedUser, len(s.users))
	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for user := range jobs {
				s.sendRandomMessage(ctx, user)
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			for _, user := range s.users {
				if s.float() < perTick {
					select {
					case jobs <- user:
					default:
					}
				}
			}
			s.mu.RUnlock()
		}
	}
}

func (s *Simulator) sendRandomMessage(ctx context.Context, sender *SimulatedUser) {
	s.mu.RLock()
	target := s.popularUser(s.users)
	s.mu.RUnlock()
	if target == sender {
		return
	}

	chatPath, err := s.openChat(ctx, sender, target)
	if err != nil {
		log.Printf("User %s could not open chat with %s: %v", sender.ID, target.ID, err)
		return
	}

	if s.float() < s.config.TypingProbability {
		if _, err := s.action(ctx, sender, "/chat/oninput", url.Values{"id": {target.ID.String()}}); err == nil {
			s.stats.mu.Lock()
			s.stats.TypingSignals++
			s.stats.mu.Unlock()
		}
	}

	s.rngMu.Lock()
	text := s.faker.Sentence(s.rng.Intn(12) + 3)
	s.rngMu.Unlock()

	res, err := s.action(ctx, sender, chatPath, url.Values{"type": {"send"}, "message": {text}})
	if err != nil {
		log.Printf("User %s failed to send message: %v", sender.ID, err)
		return
	}
	if !res.OK {
		log.Printf("User %s message rejected: %s", sender.ID, res.message())
		return
	}
	s.stats.mu.Lock()
	s.stats.Messages++
	s.stats.mu.Unlock()
}

// openChat returns the /chat/{id} path of the pair's conversation.
func (s *Simulator) openChat(ctx context.Context, from, to *SimulatedUser) (string, error) {
	resp, err := s.postForm(ctx, from, "/users/redirect-chat", url.Values{"requestUserId": {to.ID.String()}})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusSeeOther || !strings.HasPrefix(resp.Location, "/chat/") {
		return "", &unexpectedResponse{status: resp.StatusCode, location: resp.Location}
	}
	return resp.Location, nil
}

func (s *Simulator) follow(ctx context.Context, follower, target *SimulatedUser) {
	res, err := s.action(ctx, follower, "/users", url.Values{"type": {"follow"}, "userId": {target.ID.String()}})
	if err != nil {
		log.Printf("User %s failed to follow %s: %v", follower.ID, target.ID, err)
		return
	}
	if !res.OK {
		return
	}
	s.stats.mu.Lock()
	s.stats.Follows++
	s.stats.mu.Unlock()
}

func (s *Simulator) simulateAccepts(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			users := append([]*SimulatedUser(nil), s.users...)
			s.mu.RUnlock()
			for _, user := range users {
				if ctx.Err() != nil {
					return
				}
				s.acceptRequests(ctx, user)
			}
		}
	}
}

func (s *Simulator) acceptRequests(ctx context.Context, user *SimulatedUser) {
	body, err := s.get(ctx, user, "/chat")
	if err != nil {
		return
	}
	var lists struct {
		Requested []struct {
			ID uuid.UUID `json:"id"`
		} `json:"requestedConversations"`
	}
	if err := json.Unmarshal(body, &lists); err != nil {
		log.Printf("Failed to parse chat list for User %s: %v", user.ID, err)
		return
	}

	for _, conv := range lists.Requested {
		if s.float() >= s.config.AcceptProbability {
			continue
		}
		res, err := s.action(ctx, user, "/chat/"+conv.ID.String(), url.Values{"type": {"accept"}})
		if err != nil || !res.OK {
			continue
		}
		s.stats.mu.Lock()
		s.stats.Accepted++
		s.stats.mu.Unlock()
	}
}

// action posts a form and decodes the JSON result.
func (s *Simulator) action(ctx context.Context, user *SimulatedUser, path string, form url.Values) (*actionResult, error) {
	resp, err := s.postForm(ctx, user, path, form)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &unexpectedResponse{status: resp.StatusCode, location: resp.Location}
	}
	var res actionResult
	if err := json.Unmarshal(resp.Body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type unexpectedResponse struct {
	status   int
	location string
}

func (e *unexpectedResponse) Error() string {
	if e.location != "" {
		return http.StatusText(e.status) + " to " + e.location
	}
	return http.StatusText(e.status)
}
