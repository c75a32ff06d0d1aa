package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

type SimConfig struct {
	NumUsers          int
	SimulationTime    time.Duration
	FollowProbability float64 // share of the user base each user follows while seeding
	MessageFrequency  float64 // messages per user per hour
	TypingProbability float64 // chance an on-input signal precedes a message
	AcceptProbability float64 // chance a pending request is accepted per check
	ZipfS             float64
	Workers           int
	Password          string
	Seed              int64
	EngineURL         string
}

// DefaultSimConfig is a small run against a local server.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		NumUsers:          20,
		SimulationTime:    5 * time.Minute,
		FollowProbability: 0.15,
		MessageFrequency:  120,
		TypingProbability: 0.5,
		AcceptProbability: 0.3,
		ZipfS:             1.07,
		Workers:           5,
		Password:          "testpass123",
		Seed:              time.Now().UnixNano(),
		EngineURL:         "http://localhost:8080",
	}
}

type SimulationStats struct {
	mu               sync.RWMutex
	StartTime        time.Time
	TotalRequests    int64
	SuccessRequests  int64
	FailedRequests   int64
	Follows          int
	Messages         int
	TypingSignals    int
	Accepted         int
	RequestLatencies []time.Duration
}

// SimulationMetrics is a snapshot of the stats.
type SimulationMetrics struct {
	TotalUsers      int
	TotalRequests   int64
	FailedRequests  int64
	Follows         int
	Messages        int
	TypingSignals   int
	Accepted        int
	AverageLatency  time.Duration
	RequestsPerSec  float64
	ElapsedDuration time.Duration
}

// SimulatedUser is one account with its own session cookie.
type SimulatedUser struct {
	ID    uuid.UUID
	Name  string
	Email string

	client *http.Client
}

type Simulator struct {
	config SimConfig
	stats  *SimulationStats
	users  []*SimulatedUser
	faker  *gofakeit.Faker
	rng    *rand.Rand
	rngMu  sync.Mutex
	mu     sync.RWMutex
}

func NewSimulator(config SimConfig) *Simulator {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &Simulator{
		config: config,
		stats: &SimulationStats{
			StartTime:        time.Now(),
			RequestLatencies: make([]time.Duration, 0),
		},
		faker: gofakeit.New(config.Seed),
		rng:   rand.New(rand.NewSource(config.Seed)),
	}
}

// Run seeds the user base and then simulates activity until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	log.Printf("Starting simulation...")

	if err := s.Seed(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.SimulateActivities(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.collectMetrics(ctx)
	}()

	wg.Wait()
	return nil
}

// Seed registers the users and builds an initial follow graph.
func (s *Simulator) Seed(ctx context.Context) error {
	log.Printf("Phase 1: Creating %d users...", s.config.NumUsers)
	if err := s.createInitialUsers(ctx); err != nil {
		return fmt.Errorf("failed to create initial users: %w", err)
	}
	if len(s.users) < 2 {
		return fmt.Errorf("need at least two users, created %d", len(s.users))
	}

	log.Printf("Phase 2: Building follow graph...")
	s.seedFollowGraph(ctx)

	log.Printf("Initialization completed successfully")
	return nil
}

func (s *Simulator) createInitialUsers(ctx context.Context) error {
	jobs := make(chan int, s.config.Workers)
	results := make(chan *SimulatedUser, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for n := range jobs {
				user, err := s.newUser(n)
				if err != nil {
					log.Printf("Worker %d: %v", workerID, err)
					continue
				}

				// Implement exponential backoff for retries
				for retries := 0; retries < 3; retries++ {
					if err = s.registerUser(ctx, user); err == nil {
						results <- user
						break
					}
					backoff := time.Duration(math.Pow(2, float64(retries))) * 250 * time.Millisecond
					log.Printf("Worker %d: Retry %d for user %s after %v delay", workerID, retries+1, user.Email, backoff)
					time.Sleep(backoff)
				}
				if err != nil {
					log.Printf("Worker %d: Failed to register user %s after retries: %v", workerID, user.Email, err)
				}
			}
		}(i)
	}

	go func() {
		defer close(jobs)
		for i := 0; i < s.config.NumUsers; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	users := make([]*SimulatedUser, 0, s.config.NumUsers)
	for user := range results {
		users = append(users, user)
		if len(users)%10 == 0 {
			log.Printf("Progress: %d/%d users created", len(users), s.config.NumUsers)
		}
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
	log.Printf("Successfully created %d users", len(users))
	return ctx.Err()
}

func (s *Simulator) newUser(n int) (*SimulatedUser, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	s.rngMu.Lock()
	name := s.faker.Name()
	email := fmt.Sprintf("%s.%d.%d@%s", strings.ToLower(s.faker.FirstName()), n, s.config.Seed%10000, s.faker.DomainName())
	s.rngMu.Unlock()

	return &SimulatedUser{
		Name:  name,
		Email: email,
		client: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

func (s *Simulator) registerUser(ctx context.Context, user *SimulatedUser) error {
	resp, err := s.postForm(ctx, user, "/sign-up", url.Values{
		"name":     {user.Name},
		"email":    {user.Email},
		"password": {s.config.Password},
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusSeeOther {
		return fmt.Errorf("sign-up rejected: %s", resp.Body)
	}

	body, err := s.get(ctx, user, "/setting")
	if err != nil {
		return err
	}
	var setting struct {
		User struct {
			ID uuid.UUID `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &setting); err != nil {
		return fmt.Errorf("failed to parse setting response: %w", err)
	}
	user.ID = setting.User.ID
	return nil
}

// seedFollowGraph gives every user a few follows, picked by Zipf rank so
// that popular users collect most followers.
func (s *Simulator) seedFollowGraph(ctx context.Context) {
	s.mu.RLock()
	users := append([]*SimulatedUser(nil), s.users...)
	s.mu.RUnlock()

	perUser := int(math.Max(1, s.config.FollowProbability*float64(len(users))))
	for _, follower := range users {
		picked := make(map[uuid.UUID]bool, perUser)
		for i := 0; i < perUser; i++ {
			if ctx.Err() != nil {
				return
			}
			target := s.popularUser(users)
			if target == follower || picked[target.ID] {
				continue
			}
			picked[target.ID] = true
			s.follow(ctx, follower, target)
		}
	}
}

func (s *Simulator) popularUser(users []*SimulatedUser) *SimulatedUser {
	if len(users) < 2 || s.config.ZipfS <= 1 {
		return users[s.intn(len(users))]
	}
	s.rngMu.Lock()
	zipf := rand.NewZipf(s.rng, s.config.ZipfS, 1, uint64(len(users)-1))
	rank := zipf.Uint64()
	s.rngMu.Unlock()
	return users[rank]
}

func (s *Simulator) intn(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

func (s *Simulator) float() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}

type simResponse struct {
	StatusCode int
	Location   string
	Body       []byte
}

func (s *Simulator) postForm(ctx context.Context, user *SimulatedUser, path string, form url.Values) (*simResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.EngineURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(user, req)
}

func (s *Simulator) get(ctx context.Context, user *SimulatedUser, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.EngineURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.do(user, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d (location %q)", path, resp.StatusCode, resp.Location)
	}
	return resp.Body, nil
}

func (s *Simulator) do(user *SimulatedUser, req *http.Request) (*simResponse, error) {
	start := time.Now()
	resp, err := user.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.recordRequest(latency, false)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.recordRequest(latency, false)
		return nil, err
	}
	ok := resp.StatusCode < http.StatusInternalServerError
	s.recordRequest(latency, ok)
	if !ok {
		return nil, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body)
	}
	return &simResponse{
		StatusCode: resp.StatusCode,
		Location:   resp.Header.Get("Location"),
		Body:       body,
	}, nil
}

func (s *Simulator) recordRequest(latency time.Duration, ok bool) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()
	s.stats.TotalRequests++
	if ok {
		s.stats.SuccessRequests++
	} else {
		s.stats.FailedRequests++
	}
	s.stats.RequestLatencies = append(s.stats.RequestLatencies, latency)
}

func (s *Simulator) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.GetMetrics()
			log.Printf("Requests: %d (failed %d) | Follows: %d | Messages: %d | Accepted: %d | Avg latency: %v | %.1f req/s",
				m.TotalRequests, m.FailedRequests, m.Follows, m.Messages, m.Accepted, m.AverageLatency, m.RequestsPerSec)
		}
	}
}

func (s *Simulator) GetMetrics() SimulationMetrics {
	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total time.Duration
	for _, l := range s.stats.RequestLatencies {
		total += l
	}
	m := SimulationMetrics{
		TotalUsers:      len(s.users),
		TotalRequests:   s.stats.TotalRequests,
		FailedRequests:  s.stats.FailedRequests,
		Follows:         s.stats.Follows,
		Messages:        s.stats.Messages,
		TypingSignals:   s.stats.TypingSignals,
		Accepted:        s.stats.Accepted,
		ElapsedDuration: time.Since(s.stats.StartTime),
	}
	if n := len(s.stats.RequestLatencies); n > 0 {
		m.AverageLatency = total / time.Duration(n)
	}
	if secs := m.ElapsedDuration.Seconds(); secs > 0 {
		m.RequestsPerSec = float64(m.TotalRequests) / secs
	}
	return m
}
