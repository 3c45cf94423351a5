package ws

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tcriess/clubchat/auth"
	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/filter"
	"github.com/tcriess/clubchat/globals"
	"github.com/tcriess/clubchat/session"
	"github.com/tcriess/clubchat/store"
	"github.com/tcriess/clubchat/types"
)

// Server exposes chat sessions over websockets and a small JSON API for the chat list.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	rules    *filter.Rules
	upgrader websocket.Upgrader
}

func NewServer(cfg *config.Config, st *store.Store, rules *filter.Rules) *Server {
	return &Server{
		cfg:   cfg,
		store: st,
		rules: rules,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/chat/{id}", s.websocketHandler).Methods(http.MethodGet)
	router.HandleFunc("/chats", s.listChatsHandler).Methods(http.MethodGet)
	router.HandleFunc("/chats", s.createChatHandler).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.Handler())
	return router
}

func httpStatus(err error) int {
	switch types.KindOf(err) {
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindForbidden:
		return http.StatusForbidden
	case types.KindInvalidArgument, types.KindInvalidOption, types.KindCannotRemoveCreator:
		return http.StatusBadRequest
	}
	return http.StatusServiceUnavailable
}

func writeError(w http.ResponseWriter, action string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(err))
	_ = json.NewEncoder(w).Encode(types.ErrorMessage{Action: action, Kind: types.KindOf(err), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		globals.AppLogger.Error("could not encode response", "error", err)
	}
}

func (s *Server) identify(r *http.Request) (types.Participant, error) {
	p, err := auth.Identify(r.Context(), r.URL.Query(), s.cfg)
	if err != nil {
		return p, err
	}
	return s.rules.Apply(p), nil
}

func (s *Server) listChatsHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.identify(r)
	if err != nil {
		writeError(w, "list", err)
		return
	}
	includeClosed := r.URL.Query().Get("closed") == "true"
	chats, err := s.store.ListChats(r.Context(), p, includeClosed)
	if err != nil {
		writeError(w, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) createChatHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.identify(r)
	if err != nil {
		writeError(w, "create", err)
		return
	}
	spec := types.ChatSpec{}
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, "create", types.ErrInvalidArgument)
		return
	}
	spec.CreatorId = p.Id
	id, err := s.store.CreateChat(r.Context(), spec)
	if err != nil {
		writeError(w, "create", err)
		return
	}
	chat, err := s.store.GetChat(r.Context(), id)
	if err != nil {
		writeError(w, "create", err)
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

// Handle incoming websockets. The access check happens before the upgrade, so a denied participant
// gets a plain HTTP error.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	chatId := mux.Vars(r)["id"]
	p, err := s.identify(r)
	if err != nil {
		writeError(w, "mount", err)
		return
	}
	sess := session.New(s.store, s.rules, p, chatId)
	if err := sess.Mount(r.Context()); err != nil {
		writeError(w, "mount", err)
		return
	}
	defer sess.Unmount()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close() //nolint

	globals.AppLogger.Debug("participant joined chat", "chat", chatId, "participant", p.Id)
	NewClient(sess, conn).Run()
	globals.AppLogger.Debug("participant left chat", "chat", chatId, "participant", p.Id)
}
