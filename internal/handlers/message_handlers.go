package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// HandleChatIndex lists my normal and requested conversations
func (s *Server) HandleChatIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lists, err := s.Engine.ListConversationsFor(r.Context(), currentUser(r))
		if err != nil {
			s.handleError(w, r, err, "/login", nil)
			return
		}
		writeJSON(w, http.StatusOK, lists)
	}
}

// HandleChatIndexAction deletes a whole conversation
func (s *Server) HandleChatIndexAction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form ChatIndexForm
		if fe := s.bindForm(r, &form); fe != nil {
			writeFormError(w, fe)
			return
		}

		if err := s.Engine.DeleteConversation(r.Context(), currentUser(r), mustUUID(form.ConversationID)); err != nil {
			s.handleError(w, r, err, "/chat", submitted(r))
			return
		}
		writeOK(w, nil)
	}
}

// HandleChat returns one conversation with the messages I can see
func (s *Server) HandleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID := mustUUID(mux.Vars(r)["chatId"])
		view, err := s.Engine.OpenConversation(r.Context(), currentUser(r), chatID)
		if err != nil {
			s.handleError(w, r, err, "/chat", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"conversation": view})
	}
}

// HandleChatAction sends, deletes or marks a message seen, or accepts the request
func (s *Server) HandleChatAction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form ChatForm
		if fe := s.bindForm(r, &form); fe != nil {
			writeFormError(w, fe)
			return
		}

		ctx := r.Context()
		me := currentUser(r)
		chatID := mustUUID(mux.Vars(r)["chatId"])

		var (
			data interface{}
			err  error
		)
		switch form.Type {
		case "send":
			data, err = s.Engine.SendMessage(ctx, me, chatID, form.Message)
		case "delete":
			err = s.Engine.DeleteMessageForMember(ctx, me, chatID, mustUUID(form.MessageID))
		case "seen":
			err = s.Engine.MarkSeenByMember(ctx, me, chatID, mustUUID(form.MessageID))
		case "accept":
			data, err = s.Engine.AcceptConversation(ctx, me, chatID)
		}
		if err != nil {
			s.handleError(w, r, err, "/chat", submitted(r))
			return
		}
		writeOK(w, data)
	}
}

// HandleOnInput tells the posted user that I am typing
func (s *Server) HandleOnInput() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form TypingForm
		if fe := s.bindForm(r, &form); fe != nil {
			writeFormError(w, fe)
			return
		}
		s.Engine.PublishTyping(r.Context(), mustUUID(form.ID))
		writeOK(w, nil)
	}
}
