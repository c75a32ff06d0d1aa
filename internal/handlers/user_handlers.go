package handlers

import (
	"log"
	"net/http"

	"chit-chat/internal/middleware"
	"chit-chat/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// HandleSignUp registers a user and starts their session
func (s *Server) HandleSignUp() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form SignUpForm
		if fe := s.bindForm(r, &form); fe != nil {
			writeFormError(w, fe)
			return
		}

		user, err := s.Engine.Register(r.Context(), form.Name, form.Email, form.Password, middleware.ClientIP(r))
		if err != nil {
			s.handleError(w, r, err, "/sign-up", submitted(r))
			return
		}

		if err := s.Sessions.Create(r.Context(), w, user.ID); err != nil {
			s.handleError(w, r, err, "/login", nil)
			return
		}
		log.Printf("HTTP Handler: User %s signed up", user.ID)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// HandleLogin checks credentials and starts a session
func (s *Server) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form LoginForm
		if fe := s.bindForm(r, &form); fe != nil {
			writeFormError(w, fe)
			return
		}

		user, err := s.Engine.Login(r.Context(), form.Email, form.Password, middleware.ClientIP(r))
		if err != nil {
			s.handleError(w, r, err, "/login", submitted(r))
			return
		}

		if err := s.Sessions.Create(r.Context(), w, user.ID); err != nil {
			s.handleError(w, r, err, "/login", nil)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// HandleForgotPassword checks that the email belongs to an account
func (s *Server) HandleForgotPassword() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form ForgotPasswordForm
		if fe := s.bindForm(r, &form); fe != nil {
			writeFormError(w, fe)
			return
		}

		if err := s.Engine.RequestPasswordReset(r.Context(), form.Email); err != nil {
			s.handleError(w, r, err, "/forgot-password", submitted(r))
			return
		}
		writeOK(w, nil)
	}
}

// HandleLogout destroys the session
func (s *Server) HandleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Sessions.Destroy(w, r); err != nil {
			log.Printf("HTTP Handler: Failed to destroy session: %v", err)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// HandleGetSetting returns the current user
func (s *Server) HandleGetSetting() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.Engine.GetUser(r.Context(), currentUser(r))
		if err != nil {
			s.handleError(w, r, err, "/login", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
	}
}

// HandleUpdateSetting renames the current user
func (s *Server) HandleUpdateSetting() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form SettingForm
		if fe := s.bindForm(r, &form); fe != nil {
			writeFormError(w, fe)
			return
		}

		user, err := s.Engine.UpdateProfile(r.Context(), currentUser(r), form.Name)
		if err != nil {
			s.handleError(w, r, err, "/setting", submitted(r))
			return
		}
		writeOK(w, user)
	}
}

// HandleDirectory lists strangers, followers and following
func (s *Server) HandleDirectory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dir, err := s.Engine.Directory(r.Context(), currentUser(r))
		if err != nil {
			s.handleError(w, r, err, "/login", nil)
			return
		}
		writeJSON(w, http.StatusOK, dir)
	}
}

// HandleFollowAction follows or unfollows the posted userId
func (s *Server) HandleFollowAction(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form FollowForm
		if fe := s.bindForm(r, &form); fe != nil {
			writeFormError(w, fe)
			return
		}

		me, target := currentUser(r), mustUUID(form.UserID)
		switch form.Type {
		case "follow":
			conv, err := s.Engine.FollowUser(r.Context(), me, target)
			if err != nil {
				s.handleError(w, r, err, page, submitted(r))
				return
			}
			writeOK(w, map[string]interface{}{"conversationId": conv.ID})
		case "unfollow":
			if err := s.Engine.UnfollowUser(r.Context(), me, target); err != nil {
				s.handleError(w, r, err, page, submitted(r))
				return
			}
			writeOK(w, nil)
		}
	}
}

// HandleUserProfile shows another user with their followers and following
func (s *Server) HandleUserProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)
		userID := mustUUID(mux.Vars(r)["userId"])
		if userID == me {
			http.Redirect(w, r, "/setting", http.StatusSeeOther)
			return
		}

		profile, err := s.Engine.Profile(r.Context(), me, userID)
		if err != nil {
			s.handleError(w, r, err, "/users", nil)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

// HandleFriend returns basic info about one user
func (s *Server) HandleFriend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(mux.Vars(r)["userId"])
		if err != nil {
			http.Redirect(w, r, "/friends", http.StatusSeeOther)
			return
		}

		user, err := s.Engine.GetUser(r.Context(), userID)
		if err != nil {
			s.handleError(w, r, err, "/friends", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]models.UserInfo{"user": user.Info()})
	}
}

// HandleRedirectChat opens the direct conversation with requestUserId
func (s *Server) HandleRedirectChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form RedirectChatForm
		if fe := s.bindForm(r, &form); fe != nil {
			writeFormError(w, fe)
			return
		}

		conv, err := s.Engine.StartConversation(r.Context(), currentUser(r), mustUUID(form.RequestUserID))
		if err != nil {
			s.handleError(w, r, err, "/users", submitted(r))
			return
		}
		http.Redirect(w, r, "/chat/"+conv.ID.String(), http.StatusSeeOther)
	}
}
