// Package chat filters, stores and indexes lobby chat messages.
package chat

import (
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/louisbranch/tycoon.lobby/internal/platform/errors"
	"github.com/louisbranch/tycoon.lobby/internal/platform/id"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"golang.org/x/text/unicode/norm"
)

const (
	rateWindow = time.Minute

	defaultMaxLength            = 200
	defaultMaxMessagesPerMinute = 30
	defaultHistorySize          = 1000
	defaultRoomHistorySize      = 500
	defaultPrivateHistorySize   = 200
	defaultTypingExpiry         = 5 * time.Second
)

// Config bounds the chat subsystem. Zero values take the defaults above.
type Config struct {
	MaxLength            int
	MaxMessagesPerMinute int
	HistorySize          int
	RoomHistorySize      int
	PrivateHistorySize   int
	BannedWords          []string
	TypingExpiry         time.Duration
}

// Stats summarizes chat activity.
type Stats struct {
	TotalMessages int `json:"total_messages"`
	Rejected      int `json:"rejected"`
	Rooms         int `json:"rooms"`
	PrivateChats  int `json:"private_chats"`
	TypingUsers   int `json:"typing_users"`
}

// Service owns every history buffer; only Store and Post write to them.
type Service struct {
	cfg    Config
	banned [][]rune
	now    func() time.Time

	mu       sync.Mutex
	global   []protocol.ChatMessage
	rooms    map[string][]protocol.ChatMessage
	private  map[string][]protocol.ChatMessage
	sent     map[string][]time.Time
	typing   map[string]time.Time
	total    int
	rejected int
}

// NewService builds a chat service. A nil clock means time.Now.
func NewService(cfg Config, now func() time.Time) *Service {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = defaultMaxLength
	}
	if cfg.MaxMessagesPerMinute <= 0 {
		cfg.MaxMessagesPerMinute = defaultMaxMessagesPerMinute
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.RoomHistorySize <= 0 {
		cfg.RoomHistorySize = defaultRoomHistorySize
	}
	if cfg.PrivateHistorySize <= 0 {
		cfg.PrivateHistorySize = defaultPrivateHistorySize
	}
	if cfg.TypingExpiry <= 0 {
		cfg.TypingExpiry = defaultTypingExpiry
	}
	if now == nil {
		now = time.Now
	}
	s := &Service{
		cfg:     cfg,
		now:     now,
		rooms:   make(map[string][]protocol.ChatMessage),
		private: make(map[string][]protocol.ChatMessage),
		sent:    make(map[string][]time.Time),
		typing:  make(map[string]time.Time),
	}
	for _, word := range cfg.BannedWords {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		s.banned = append(s.banned, lowerRunes(norm.NFC.String(word)))
	}
	return s
}

// Filter checks content from senderID: length, then the sliding-window rate
// limit, then banned-word masking. Rejections carry CONTENT_REJECTED or
// RATE_LIMITED and are never queued. An accepted message consumes one slot of
// the sender's window.
func (s *Service) Filter(senderID, content string) (string, error) {
	content = strings.TrimSpace(norm.NFC.String(content))
	if content == "" {
		s.reject()
		return "", apperrors.WithMetadata(apperrors.CodeContentRejected, "empty message", map[string]string{"Reason": "Message is empty"})
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxLength {
		s.reject()
		return "", apperrors.WithMetadata(apperrors.CodeContentRejected, "message too long", map[string]string{"Reason": "Message is too long"})
	}

	s.mu.Lock()
	now := s.now()
	window := pruneBefore(s.sent[senderID], now.Add(-rateWindow))
	if len(window) >= s.cfg.MaxMessagesPerMinute {
		s.sent[senderID] = window
		s.rejected++
		s.mu.Unlock()
		return "", apperrors.New(apperrors.CodeRateLimited, "rate limit exceeded")
	}
	s.sent[senderID] = append(window, now)
	s.mu.Unlock()

	return s.mask(content), nil
}

func (s *Service) reject() {
	s.mu.Lock()
	s.rejected++
	s.mu.Unlock()
}

func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

// mask replaces every case-insensitive occurrence of a banned word with one
// '*' per rune.
func (s *Service) mask(content string) string {
	if len(s.banned) == 0 {
		return content
	}
	original := []rune(content)
	lowered := lowerRunes(content)
	for _, word := range s.banned {
		for i := 0; i+len(word) <= len(lowered); i++ {
			if runesEqual(lowered[i:i+len(word)], word) {
				for j := i; j < i+len(word); j++ {
					original[j] = '*'
				}
			}
		}
	}
	return string(original)
}

func lowerRunes(s string) []rune {
	out := []rune(s)
	for i, r := range out {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Draft describes a message before filtering.
type Draft struct {
	SenderID   string
	SenderName string
	Content    string
	Kind       protocol.ChatKind
	RoomID     string
	TargetID   string
}

// Post filters a draft and stores the result.
func (s *Service) Post(d Draft) (protocol.ChatMessage, error) {
	if d.Kind == "" {
		d.Kind = protocol.ChatPublic
	}
	if d.Kind == protocol.ChatPrivate && strings.TrimSpace(d.TargetID) == "" {
		s.reject()
		return protocol.ChatMessage{}, apperrors.WithMetadata(apperrors.CodeContentRejected, "private message without target", map[string]string{"Reason": "Private messages need a recipient"})
	}
	content, err := s.Filter(d.SenderID, d.Content)
	if err != nil {
		return protocol.ChatMessage{}, err
	}
	msg := s.newMessage(d.Kind, content)
	msg.Filtered = content != strings.TrimSpace(norm.NFC.String(d.Content))
	msg.SenderID = d.SenderID
	msg.SenderName = d.SenderName
	msg.RoomID = d.RoomID
	if d.Kind == protocol.ChatPrivate {
		msg.TargetID = d.TargetID
	}
	s.Store(msg)
	return msg, nil
}

// System stores an unfiltered notice of the given kind for a room, or the
// global history when roomID is empty.
func (s *Service) System(kind protocol.ChatKind, roomID, content string) protocol.ChatMessage {
	msg := s.newMessage(kind, content)
	msg.SenderName = "system"
	msg.RoomID = roomID
	s.Store(msg)
	return msg
}

func (s *Service) newMessage(kind protocol.ChatKind, content string) protocol.ChatMessage {
	messageID, err := id.NewPrefixed("msg_")
	if err != nil {
		messageID = "msg_" + s.now().Format("20060102150405.000000000")
	}
	return protocol.ChatMessage{
		MessageID:   messageID,
		Content:     content,
		MessageType: kind,
		Timestamp:   s.now().UnixMilli(),
	}
}

// Store appends msg to its histories. Private messages go only to the pair
// history; others go to the global history and, with a room id, to the room.
func (s *Service) Store(msg protocol.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if msg.MessageType == protocol.ChatPrivate && msg.TargetID != "" {
		key := pairKey(msg.SenderID, msg.TargetID)
		s.private[key] = appendBounded(s.private[key], msg, s.cfg.PrivateHistorySize)
		return
	}
	s.global = appendBounded(s.global, msg, s.cfg.HistorySize)
	if msg.RoomID != "" {
		s.rooms[msg.RoomID] = appendBounded(s.rooms[msg.RoomID], msg, s.cfg.RoomHistorySize)
	}
}

func appendBounded(history []protocol.ChatMessage, msg protocol.ChatMessage, limit int) []protocol.ChatMessage {
	history = append(history, msg)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}

func tail(history []protocol.ChatMessage, limit int) []protocol.ChatMessage {
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}
	out := make([]protocol.ChatMessage, limit)
	copy(out, history[len(history)-limit:])
	return out
}

// GlobalHistory returns up to limit recent non-private messages, oldest first.
func (s *Service) GlobalHistory(limit int) []protocol.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tail(s.global, limit)
}

// RoomHistory returns up to limit recent messages of a room, oldest first.
func (s *Service) RoomHistory(roomID string, limit int) []protocol.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tail(s.rooms[roomID], limit)
}

// PrivateHistory returns the conversation between a and b. The argument order
// does not matter.
func (s *Service) PrivateHistory(a, b string, limit int) []protocol.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tail(s.private[pairKey(a, b)], limit)
}

// DropRoom discards a deleted room's history.
func (s *Service) DropRoom(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}

// SetTyping records or clears a typing indicator.
func (s *Service) SetTyping(userID string, typing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if typing {
		s.typing[userID] = s.now()
		return
	}
	delete(s.typing, userID)
}

// TypingUsers returns the users with a live indicator, pruning expired ones.
func (s *Service) TypingUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneTypingLocked()
	users := make([]string, 0, len(s.typing))
	for userID := range s.typing {
		users = append(users, userID)
	}
	return users
}

// IsTyping reports a live indicator for userID.
func (s *Service) IsTyping(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneTypingLocked()
	_, ok := s.typing[userID]
	return ok
}

func (s *Service) pruneTypingLocked() {
	cutoff := s.now().Add(-s.cfg.TypingExpiry)
	for userID, at := range s.typing {
		if at.Before(cutoff) {
			delete(s.typing, userID)
		}
	}
}

// Forget drops per-user rate and typing state after a disconnect.
func (s *Service) Forget(userID string) {
	s.mu.Lock()
	delete(s.sent, userID)
	delete(s.typing, userID)
	s.mu.Unlock()
}

// Stats reports counters and collection sizes.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneTypingLocked()
	return Stats{
		TotalMessages: s.total,
		Rejected:      s.rejected,
		Rooms:         len(s.rooms),
		PrivateChats:  len(s.private),
		TypingUsers:   len(s.typing),
	}
}
