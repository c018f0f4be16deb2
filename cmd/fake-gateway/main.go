// ABOUTME: Minimal fake gateway for local testing; serves the chat websocket and echoes replies.
// ABOUTME: Usage: fake-gateway [-addr localhost:8080] [-delay 25ms] [-chunk 19]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/coven-chat/internal/sse"
	"github.com/2389/coven-chat/internal/wire"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "listen address")
	delay := flag.Duration("delay", 25*time.Millisecond, "delay between streamed frames")
	chunk := flag.Int("chunk", 19, "bytes per streamed frame")
	flag.Parse()

	srv := newServer(*delay, *chunk)

	mux := http.NewServeMux()
	mux.HandleFunc("/chat", srv.handleWS)
	mux.HandleFunc("/chat/get-messages", srv.handleGetMessages)

	log.Printf("fake gateway listening on ws://%s/chat", *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}

type server struct {
	delay time.Duration
	chunk int

	upgrader websocket.Upgrader
	replies  atomic.Int64

	mu       sync.Mutex
	messages []wire.Message
	clients  map[*client]bool
	cancels  map[string]context.CancelFunc
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(f *wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func newServer(delay time.Duration, chunk int) *server {
	if chunk < 1 {
		chunk = 1
	}
	return &server{
		delay:    delay,
		chunk:    chunk,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*client]bool),
		cancels:  make(map[string]context.CancelFunc),
	}
}

func (s *server) handleGetMessages(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	msgs := wire.CloneMessages(s.messages)
	s.mu.Unlock()

	if msgs == nil {
		msgs = []wire.Message{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(msgs); err != nil {
		log.Printf("encoding messages: %v", err)
	}
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn}
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	log.Printf("client connected from %s", r.RemoteAddr)

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		conn.Close()
		log.Printf("client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := wire.Decode(data)
		if err != nil {
			log.Printf("dropping malformed frame: %v", err)
			continue
		}
		s.dispatch(c, f)
	}
}

func (s *server) dispatch(from *client, f *wire.Frame) {
	switch f.Type {
	case wire.TypeChatRequest:
		log.Printf("chat request %s", f.ID)
		ctx, cancel := context.WithCancel(context.Background())
		s.mu.Lock()
		s.cancels[f.ID] = cancel
		s.mu.Unlock()
		go s.stream(ctx, f)
	case wire.TypeChatRequestCancel:
		log.Printf("cancel %s", f.ID)
		s.mu.Lock()
		if cancel, ok := s.cancels[f.ID]; ok {
			cancel()
			delete(s.cancels, f.ID)
		}
		s.mu.Unlock()
	case wire.TypeChatClear:
		log.Printf("clearing conversation")
		s.mu.Lock()
		s.messages = nil
		s.mu.Unlock()
		s.broadcastExcept(from, wire.NewClear())
	case wire.TypeChatMessages:
		log.Printf("replacing conversation with %d messages", len(f.Messages))
		s.mu.Lock()
		s.messages = wire.CloneMessages(f.Messages)
		s.mu.Unlock()
		s.broadcastExcept(from, wire.NewSnapshot(f.Messages))
	case wire.TypeRPC:
		go s.handleRPC(from, f)
	default:
		log.Printf("ignoring %s frame", f.Type)
	}
}

// stream echoes a reply as SSE text cut into fixed-size frames, so event
// lines routinely split across frame boundaries like they do in production.
func (s *server) stream(ctx context.Context, req *wire.Frame) {
	prompt := s.adoptRequest(req)
	reply := echoReply(prompt)
	msgID := fmt.Sprintf("a%d", s.replies.Add(1))

	var body strings.Builder
	writeEvent(&body, sse.Event{Type: sse.EventStart, MessageID: msgID})
	for _, word := range splitWords(reply) {
		writeEvent(&body, sse.Event{Type: sse.EventTextDelta, Delta: word})
	}
	writeEvent(&body, sse.Event{Type: sse.EventFinish})

	full := body.String()
	for i := 0; i < len(full); i += s.chunk {
		if ctx.Err() != nil {
			log.Printf("stream %s cancelled", req.ID)
			return
		}
		end := i + s.chunk
		if end > len(full) {
			end = len(full)
		}
		s.broadcast(wire.NewChatChunk(req.ID, full[i:end]))
		time.Sleep(s.delay)
	}
	s.broadcast(wire.NewChatDone(req.ID))

	s.mu.Lock()
	s.messages = append(s.messages, wire.TextMessage(msgID, wire.RoleAssistant, reply))
	delete(s.cancels, req.ID)
	s.mu.Unlock()
}

// adoptRequest replaces the shared conversation with the request's message
// list and returns the latest user prompt.
func (s *server) adoptRequest(req *wire.Frame) string {
	var payload struct {
		Messages []wire.Message `json:"messages"`
	}
	if req.Init != nil {
		if err := json.Unmarshal([]byte(req.Init.Body), &payload); err != nil {
			log.Printf("bad request body: %v", err)
		}
	}

	s.mu.Lock()
	s.messages = wire.CloneMessages(payload.Messages)
	s.mu.Unlock()

	for i := len(payload.Messages) - 1; i >= 0; i-- {
		if payload.Messages[i].Role == wire.RoleUser {
			return payload.Messages[i].Text()
		}
	}
	return ""
}

func (s *server) handleRPC(from *client, req *wire.Frame) {
	log.Printf("rpc %s(%d args)", req.Method, len(req.Args))

	switch req.Method {
	case "ping":
		s.sendTo(from, wire.NewRPCResult(req.ID, `"pong"`))
	case "listModels":
		// Split the result across two frames to exercise reassembly.
		s.sendTo(from, &wire.Frame{Type: wire.TypeRPC, ID: req.ID, Body: `["fake-model-1",`})
		s.sendTo(from, wire.NewRPCResult(req.ID, `"fake-model-2"]`))
	default:
		s.sendTo(from, wire.NewRPCError(req.ID, fmt.Sprintf("unknown method %q", req.Method)))
	}
}

func (s *server) sendTo(c *client, f *wire.Frame) {
	if err := c.send(f); err != nil {
		log.Printf("send error: %v", err)
	}
}

func (s *server) broadcast(f *wire.Frame) {
	s.broadcastExcept(nil, f)
}

func (s *server) broadcastExcept(skip *client, f *wire.Frame) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		if c != skip {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.send(f); err != nil {
			log.Printf("broadcast error: %v", err)
		}
	}
}

func writeEvent(b *strings.Builder, ev sse.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("encoding event: %v", err)
		return
	}
	b.WriteString("data: ")
	b.Write(data)
	b.WriteString("\n")
}

// splitWords cuts the reply into whitespace-keeping fragments so deltas
// look like token streams.
func splitWords(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == ' ' || r == '\n' {
			out = append(out, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func echoReply(input string) string {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "markdown") || strings.Contains(lower, "bullet") || strings.Contains(lower, "list") {
		return "Here is a **markdown** response:\n\n- First item\n- Second item with `code`\n- Third item\n\n> This is a blockquote.\n"
	}
	if input == "" {
		return "Say something and I will echo it back."
	}
	return fmt.Sprintf("Echo: **%s**\n\nI received your message and am responding with some *formatted* text.", input)
}
