package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type chatRecord struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	LastMessage string `json:"last_message"`
	UnreadCount int    `json:"unread_count"`
	Online      bool   `json:"online"`
	OtherUserID int64  `json:"otherUserId"`
	IsBlocked   bool   `json:"is_blocked"`
}

type messageRecord struct {
	ID          int64              `json:"id"`
	ChatID      int64              `json:"chat_id"`
	SenderID    int64              `json:"sender_id"`
	Content     string             `json:"content"`
	IsRead      int                `json:"is_read"`
	CreatedAt   string             `json:"created_at"`
	Name        string             `json:"name"`
	Attachments []attachmentRecord `json:"attachments,omitempty"`
}

type attachmentRecord struct {
	ID   int64  `json:"id"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Name string `json:"name"`
}

type userRecord struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// chatServer is an in-memory chat backend.
type chatServer struct {
	*httptest.Server

	mu        sync.Mutex
	chats     []chatRecord
	messages  map[int64][]messageRecord
	users     []userRecord
	nextID    int64
	reads     map[int64]int
	blocked   []int64
	unblocked []int64
	searches  []string
	posts     int
	failNext  map[string]string
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	s := &chatServer{
		chats: []chatRecord{
			{ID: 1, Type: "direct", Name: "alice", LastMessage: "see you", UnreadCount: 2, Online: true, OtherUserID: 2},
			{ID: 2, Type: "direct", Name: "albert", OtherUserID: 3, IsBlocked: true},
			{ID: 3, Type: "group", Name: "team"},
		},
		messages: map[int64][]messageRecord{
			1: {
				{ID: 10, ChatID: 1, SenderID: 1, Content: "hello alice", IsRead: 1, CreatedAt: "2026-03-01 10:00:00"},
				{ID: 11, ChatID: 1, SenderID: 2, Content: "see you", IsRead: 0, CreatedAt: "2026-03-01 10:01:00", Name: "Alice"},
			},
		},
		users: []userRecord{
			{ID: 7, Name: "Grace", Username: "grace"},
			{ID: 8, Name: "Alan", Username: "alan"},
		},
		nextID:   100,
		reads:    make(map[int64]int),
		failNext: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chats", s.listChats)
	mux.HandleFunc("POST /api/chats", s.startChat)
	mux.HandleFunc("GET /api/chats/{id}/messages", s.listMessages)
	mux.HandleFunc("POST /api/chats/{id}/messages", s.sendMessage)
	mux.HandleFunc("DELETE /api/chats/{id}/messages/{mid}", s.deleteMessage)
	mux.HandleFunc("POST /api/chats/{id}/read", s.markRead)
	mux.HandleFunc("POST /api/users/block", s.block)
	mux.HandleFunc("DELETE /api/users/block/{uid}", s.unblock)
	mux.HandleFunc("GET /api/users/search", s.search)

	s.Server = httptest.NewServer(s.authorize(mux))
	t.Cleanup(s.Close)
	return s
}

// failOn makes the next request matching "METHOD /path" fail with a 500 and message.
func (s *chatServer) failOn(route, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[route] = message
}

func (s *chatServer) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		s.mu.Lock()
		message, fail := s.failNext[r.Method+" "+r.URL.Path]
		delete(s.failNext, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		if fail {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request, name string) int64 {
	n, _ := strconv.ParseInt(r.PathValue(name), 10, 64)
	return n
}

func (s *chatServer) listChats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.chats)
}

func (s *chatServer) startChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TargetUserID int64 `json:"targetUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TargetUserID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "targetUserId required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chat := range s.chats {
		if chat.OtherUserID == body.TargetUserID {
			writeJSON(w, http.StatusOK, map[string]int64{"id": chat.ID})
			return
		}
	}
	id := int64(len(s.chats) + 1)
	name := "user " + strconv.FormatInt(body.TargetUserID, 10)
	for _, user := range s.users {
		if user.ID == body.TargetUserID {
			name = user.Name
		}
	}
	s.chats = append(s.chats, chatRecord{ID: id, Type: "direct", Name: name, OtherUserID: body.TargetUserID})
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *chatServer) listMessages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[pathID(r, "id")]
	if list == nil {
		list = []messageRecord{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *chatServer) sendMessage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	chat := pathID(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts++
	s.nextID++
	msg := messageRecord{
		ID:        s.nextID,
		ChatID:    chat,
		SenderID:  1,
		Content:   r.FormValue("content"),
		IsRead:    1,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for i, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err == nil {
			_, _ = io.Copy(io.Discard, f)
			f.Close()
		}
		kind := "file"
		if strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
			kind = "image"
		}
		msg.Attachments = append(msg.Attachments, attachmentRecord{
			ID:   int64(i + 1),
			URL:  "/uploads/" + header.Filename,
			Type: kind,
			Name: header.Filename,
		})
	}
	s.messages[chat] = append(s.messages[chat], msg)
	writeJSON(w, http.StatusCreated, msg)
}

func (s *chatServer) deleteMessage(w http.ResponseWriter, r *http.Request) {
	chat, id := pathID(r, "id"), pathID(r, "mid")
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[chat]
	for i, msg := range list {
		if msg.ID == id {
			s.messages[chat] = append(list[:i:i], list[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "message not found"})
}

func (s *chatServer) markRead(w http.ResponseWriter, r *http.Request) {
	chat := pathID(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[chat]++
	for i := range s.chats {
		if s.chats[i].ID == chat {
			s.chats[i].UnreadCount = 0
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *chatServer) block(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID int64 `json:"userId"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = append(s.blocked, body.UserID)
	for i := range s.chats {
		if s.chats[i].OtherUserID == body.UserID {
			s.chats[i].IsBlocked = true
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *chatServer) unblock(w http.ResponseWriter, r *http.Request) {
	user := pathID(r, "uid")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unblocked = append(s.unblocked, user)
	for i := range s.chats {
		if s.chats[i].OtherUserID == user {
			s.chats[i].IsBlocked = false
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *chatServer) search(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(r.URL.Query().Get("query"))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches = append(s.searches, query)
	found := []userRecord{}
	for _, user := range s.users {
		if strings.Contains(strings.ToLower(user.Name), query) || strings.Contains(user.Username, query) {
			found = append(found, user)
		}
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *chatServer) readCount(chat int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[chat]
}

func (s *chatServer) postCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts
}
