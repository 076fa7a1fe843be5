package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Server holds the router the webhook, send, and conversation
// handlers register themselves on.
type Server struct {
	Mux *mux.Router
}

func New() *Server {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, ErrNotFound, http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	return &Server{Mux: r}
}
