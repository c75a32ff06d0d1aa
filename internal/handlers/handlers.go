package handlers

import (
	"log"
	"net/http"
	"time"

	"chit-chat/internal/engine"
	"chit-chat/internal/middleware"
	"chit-chat/internal/utils"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Server holds all HTTP dependencies
type Server struct {
	Engine         *engine.Engine
	Sessions       *middleware.SessionManager
	Metrics        *utils.MetricsCollector
	AllowedOrigins []string
	KeepAlive      time.Duration
	Debug          bool // log every request with its duration

	validate *validator.Validate
	decoder  *form.Decoder
}

// NewServer creates a new Server instance with the given components
func NewServer(
	engine *engine.Engine,
	sessions *middleware.SessionManager,
	metrics *utils.MetricsCollector,
	allowedOrigins []string,
) *Server {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(formTagName)

	return &Server{
		Engine:         engine,
		Sessions:       sessions,
		Metrics:        metrics,
		AllowedOrigins: allowedOrigins,
		KeepAlive:      25 * time.Second, // Keeps idle event streams open through proxies
		validate:       validate,
		decoder:        newFormDecoder(),
	}
}

// uuidPattern keeps literal paths like /chat/oninput out of {chatId}.
const uuidPattern = "[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}"

// Routes builds the router. Everything except auth, health and metrics
// requires a session.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.countRequests)

	r.HandleFunc("/health", s.HandleHealth()).Methods(http.MethodGet)
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/sign-up", s.HandleSignUp()).Methods(http.MethodPost)
	r.HandleFunc("/login", s.HandleLogin()).Methods(http.MethodPost)
	r.HandleFunc("/forgot-password", s.HandleForgotPassword()).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.HandleLogout()).Methods(http.MethodPost)

	protected := r.NewRoute().Subrouter()
	protected.Use(s.Sessions.RequireUser)

	protected.HandleFunc("/setting", s.HandleGetSetting()).Methods(http.MethodGet)
	protected.HandleFunc("/setting", s.HandleUpdateSetting()).Methods(http.MethodPost)

	protected.HandleFunc("/users", s.HandleDirectory()).Methods(http.MethodGet)
	protected.HandleFunc("/users", s.HandleFollowAction("/users")).Methods(http.MethodPost)
	protected.HandleFunc("/users/redirect-chat", s.HandleRedirectChat()).Methods(http.MethodPost)
	protected.HandleFunc("/users/{userId:"+uuidPattern+"}", s.HandleUserProfile()).Methods(http.MethodGet)
	protected.HandleFunc("/users/{userId}", s.redirectTo("/users")).Methods(http.MethodGet)
	protected.HandleFunc("/friends", s.HandleDirectory()).Methods(http.MethodGet)
	protected.HandleFunc("/friends", s.HandleFollowAction("/friends")).Methods(http.MethodPost)
	protected.HandleFunc("/friends/{userId}", s.HandleFriend()).Methods(http.MethodGet)

	protected.HandleFunc("/chat", s.HandleChatIndex()).Methods(http.MethodGet)
	protected.HandleFunc("/chat", s.HandleChatIndexAction()).Methods(http.MethodPost)
	protected.HandleFunc("/chat/send-message", s.HandleEventStream(sendMessageStream)).Methods(http.MethodGet)
	protected.HandleFunc("/chat/oninput", s.HandleEventStream(onInputStream)).Methods(http.MethodGet)
	protected.HandleFunc("/chat/oninput", s.HandleOnInput()).Methods(http.MethodPost)
	protected.HandleFunc("/chat/{chatId:"+uuidPattern+"}", s.HandleChat()).Methods(http.MethodGet)
	protected.HandleFunc("/chat/{chatId:"+uuidPattern+"}", s.HandleChatAction()).Methods(http.MethodPost)
	protected.HandleFunc("/chat/{chatId}", s.redirectTo("/chat")).Methods(http.MethodGet)

	protected.HandleFunc("/ws", s.HandleWebSocket()).Methods(http.MethodGet)

	return r
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Metrics != nil {
			s.Metrics.IncrementRequests()
		}
		if !s.Debug {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("HTTP Handler: %s %s took %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) redirectTo(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, path, http.StatusSeeOther)
	}
}

// currentUser is only valid behind RequireUser.
func currentUser(r *http.Request) uuid.UUID {
	id, _ := middleware.GetUserIDFromContext(r.Context())
	return id
}
