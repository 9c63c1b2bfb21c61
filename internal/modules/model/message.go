package model

import (
	"sort"
	"time"
)

type MessageKind string

const (
	MessageText         MessageKind = "text"
	MessageImage        MessageKind = "image"
	MessageFile         MessageKind = "file"
	MessageCode         MessageKind = "code"
	MessageSystem       MessageKind = "system"
	MessageAnnouncement MessageKind = "announcement"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageText, MessageImage, MessageFile, MessageCode, MessageSystem, MessageAnnouncement:
		return true
	default:
		return false
	}
}

type ChatMessage struct {
	ID          string              `json:"id"`
	UserID      string              `json:"user_id"`
	Username    string              `json:"username"`
	Content     string              `json:"content"`
	Kind        MessageKind         `json:"message_type"`
	ChannelID   string              `json:"channel_id"`
	Timestamp   time.Time           `json:"timestamp"`
	EditedAt    *time.Time          `json:"edited_at,omitempty"`
	ReplyTo     string              `json:"reply_to,omitempty"`
	Reactions   map[string][]string `json:"reactions"`
	Attachments []string            `json:"attachments"`

	reactionSet map[string]map[string]struct{}
}

// AddReaction records userID under emoji. It returns false if the user had
// already reacted with that emoji.
func (m *ChatMessage) AddReaction(emoji, userID string) bool {
	if m.reactionSet == nil {
		m.reactionSet = make(map[string]map[string]struct{})
	}
	set, ok := m.reactionSet[emoji]
	if !ok {
		set = make(map[string]struct{})
		m.reactionSet[emoji] = set
	}
	if _, dup := set[userID]; dup {
		return false
	}
	set[userID] = struct{}{}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	m.Reactions[emoji] = ids
	return true
}

// Clone copies the exported view; the reaction index stays with the original.
func (m ChatMessage) Clone() ChatMessage {
	out := m
	out.reactionSet = nil
	out.Attachments = append([]string(nil), m.Attachments...)
	out.Reactions = make(map[string][]string, len(m.Reactions))
	for k, v := range m.Reactions {
		out.Reactions[k] = append([]string(nil), v...)
	}
	return out
}
