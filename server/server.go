package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/askdoc/askdoc/internal/models"
	"github.com/askdoc/askdoc/internal/types"
	"github.com/askdoc/askdoc/pkg/extract"
	"github.com/askdoc/askdoc/pkg/llm"
	"github.com/askdoc/askdoc/pkg/rag"
	"github.com/askdoc/askdoc/pkg/retriever"
	"github.com/askdoc/askdoc/pkg/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

const maxUploadBytes = 32 << 20

// Message is the websocket frame: a type tag, an optional text payload, and
// an optional structured payload.
type Message struct {
	Type       string      `json:"type"`
	Content    string      `json:"content,omitempty"`
	DocumentID string      `json:"documentId,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

type Config struct {
	Addr string
}

// Server exposes the pipeline over HTTP: document upload/list/delete,
// passage search, question answering, topic suggestion, and a websocket chat.
type Server struct {
	config Config
	store  *store.Store
	search types.Searcher
	synth  *rag.Synthesizer
}

func New(config Config, st *store.Store, search types.Searcher, synth *rag.Synthesizer) *Server {
	return &Server{
		config: config,
		store:  st,
		search: search,
		synth:  synth,
	}
}

// Routes builds the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /documents", s.handleUpload)
	mux.HandleFunc("GET /documents", s.handleList)
	mux.HandleFunc("DELETE /documents/{id}", s.handleDelete)
	mux.HandleFunc("GET /documents/{id}/search", s.handleSearch)
	mux.HandleFunc("GET /documents/{id}/topics", s.handleTopics)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start blocks serving HTTP on the configured address.
func (s *Server) Start() error {
	log.Printf("listening on %s", s.config.Addr)
	return http.ListenAndServe(s.config.Addr, s.Routes())
}

type uploadResponse struct {
	DocumentID string `json:"documentId"`
	FileName   string `json:"fileName"`
	ChunkCount int    `json:"chunkCount"`
	PageCount  int    `json:"pageCount"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	doc, err := extract.FromReader(header.Filename, file)
	if errors.Is(err, extract.ErrEmptyDocument) {
		writeError(w, http.StatusUnprocessableEntity, "document contains no text")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := s.store.CreateIndex(r.Context(), doc.ID, *doc)
	if err != nil {
		if errors.Is(err, store.ErrEmptyDocument) {
			writeError(w, http.StatusUnprocessableEntity, "document contains no text")
			return
		}
		log.Printf("indexing %s failed: %v", doc.ID, err)
		writeError(w, http.StatusBadGateway, "indexing failed")
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		DocumentID: doc.ID,
		FileName:   info.FileName,
		ChunkCount: info.ChunkCount,
		PageCount:  info.PageCount,
	})
}

type documentSummary struct {
	DocumentID string            `json:"documentId"`
	Info       *models.IndexInfo `json:"info,omitempty"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.List(r.Context())
	if err != nil {
		log.Printf("listing documents failed: %v", err)
		writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}

	summaries := make([]documentSummary, 0, len(ids))
	for _, id := range ids {
		summary := documentSummary{DocumentID: id}
		// Info is a separate cheap record; a missing one is not fatal.
		if info, err := s.store.Info(r.Context(), id); err == nil {
			summary.Info = info
		}
		summaries = append(summaries, summary)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": summaries})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	existed, err := s.store.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("deleting %s failed: %v", r.PathValue("id"), err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "no such document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	topK := 0
	if k := r.URL.Query().Get("k"); k != "" {
		n, err := strconv.Atoi(k)
		if err != nil {
			writeError(w, http.StatusBadRequest, "query parameter k must be an integer")
			return
		}
		topK = n
	}

	results, err := s.search.Retrieve(r.Context(), r.PathValue("id"), query, topK)
	if err != nil {
		if errors.Is(err, retriever.ErrStoreNotFound) {
			writeError(w, http.StatusNotFound, "no such document")
			return
		}
		log.Printf("search in %s failed: %v", r.PathValue("id"), err)
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

type askRequest struct {
	DocumentID string `json:"documentId"`
	Question   string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := s.synth.Answer(r.Context(), req.DocumentID, req.Question)
	if err != nil {
		var synthErr *llm.SynthesisError
		if errors.As(err, &synthErr) {
			log.Printf("synthesis failed: %v", err)
			writeError(w, http.StatusBadGateway, "language model unavailable")
			return
		}
		log.Printf("answering failed: %v", err)
		writeError(w, http.StatusInternalServerError, "answering failed")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	topics := s.synth.SuggestTopics(r.Context(), r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string][]string{"topics": topics})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("error reading message: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.send(conn, Message{Type: "error", Content: "invalid message"})
			continue
		}

		switch msg.Type {
		case "ask":
			answer, err := s.synth.Answer(r.Context(), msg.DocumentID, msg.Content)
			if err != nil {
				s.send(conn, Message{Type: "error", Content: fmt.Sprintf("answering failed: %v", err)})
				continue
			}
			s.send(conn, Message{Type: "answer", DocumentID: msg.DocumentID, Data: answer})
		case "topics":
			topics := s.synth.SuggestTopics(r.Context(), msg.DocumentID)
			s.send(conn, Message{Type: "topics", DocumentID: msg.DocumentID, Data: topics})
		default:
			s.send(conn, Message{Type: "error", Content: fmt.Sprintf("unknown message type: %s", msg.Type)})
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("error writing message: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
