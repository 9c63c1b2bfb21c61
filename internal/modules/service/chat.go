package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/modules/repo"
	"github.com/valis-ai/valis/internal/pkg/apperr"
	"github.com/valis-ai/valis/internal/pkg/ratelimit"
)

// MultiSink delivers to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, handles []string, evt model.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, handles, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type ChatConfig struct {
	HistoryCap     int
	RecentOnJoin   int
	DefaultChannel string
}

type SendInput struct {
	UserID      string
	ChannelID   string
	Content     string
	Kind        model.MessageKind
	ReplyTo     string
	Attachments []string
}

type ConnectResult struct {
	Handle      string           `json:"handle"`
	User        model.ChatUser   `json:"user"`
	Channels    []model.Channel  `json:"channels"`
	OnlineUsers []model.ChatUser `json:"online_users"`
}

type JoinResult struct {
	Channel        model.Channel       `json:"channel"`
	RecentMessages []model.ChatMessage `json:"recent_messages"`
	OnlineMembers  []model.ChatUser    `json:"online_members"`
}

type ChatService interface {
	Register(ctx context.Context, username, displayName string, role model.Role) (*model.ChatUser, error)
	SetRole(ctx context.Context, userID string, role model.Role) (*model.ChatUser, error)
	Connect(ctx context.Context, userID, handle string) (*ConnectResult, error)
	Disconnect(ctx context.Context, handle string)
	Send(ctx context.Context, in SendInput) (*model.ChatMessage, error)
	Join(ctx context.Context, userID, channelID, handle string) (*JoinResult, error)
	Leave(ctx context.Context, userID, channelID, handle string) error
	React(ctx context.Context, userID, messageID, emoji string) (*model.ChatMessage, error)
	Messages(ctx context.Context, channelID string, limit int, before time.Time) ([]model.ChatMessage, error)
	// Channels lists the channels visible to userID; an empty id sees what a guest sees.
	Channels(ctx context.Context, userID string) ([]model.Channel, error)
	OnlineUsers(ctx context.Context) []model.ChatUser
	Stats(ctx context.Context) model.ChatStats
}

type chatService struct {
	r       repo.ChatRepo
	limiter *ratelimit.Limiter
	sink    Sink
	cfg     ChatConfig
	log     *zap.Logger
}

func NewChatService(r repo.ChatRepo, limiter *ratelimit.Limiter, sink Sink, cfg ChatConfig, log *zap.Logger) ChatService {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 1000
	}
	if cfg.RecentOnJoin <= 0 {
		cfg.RecentOnJoin = 50
	}
	if cfg.DefaultChannel == "" {
		cfg.DefaultChannel = model.DefaultChannelID
	}
	return &chatService{r: r, limiter: limiter, sink: sink, cfg: cfg, log: log}
}

func (s *chatService) Register(ctx context.Context, username, displayName string, role model.Role) (*model.ChatUser, error) {
	const op = "service.chat.register"
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.Invalid(op, "username is required")
	}
	if role == "" {
		role = model.RoleUser
	}
	if !role.Valid() {
		return nil, apperr.Invalid(op, "unknown role "+string(role))
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = username
	}
	now := time.Now()
	u := &model.ChatUser{
		ID:          uuid.NewString(),
		Username:    username,
		DisplayName: displayName,
		Role:        role,
		Status:      model.StatusOffline,
		JoinedAt:    now,
		LastSeen:    now,
	}
	if err := s.r.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.Sugar().Infow("chat user registered", "user_id", u.ID, "username", username, "role", role)
	return u, nil
}

func (s *chatService) SetRole(ctx context.Context, userID string, role model.Role) (*model.ChatUser, error) {
	if !role.Valid() {
		return nil, apperr.Invalid("service.chat.set_role", "unknown role "+string(role))
	}
	u, err := s.r.UpdateUser(ctx, userID, func(u *model.ChatUser) { u.Role = role })
	if err != nil {
		return nil, err
	}
	s.log.Sugar().Infow("chat role changed", "user_id", userID, "role", role)
	return u, nil
}

func (s *chatService) Connect(ctx context.Context, userID, handle string) (*ConnectResult, error) {
	if _, err := s.r.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	first := s.r.Attach(ctx, userID, handle)
	u, err := s.r.UpdateUser(ctx, userID, func(u *model.ChatUser) {
		u.Status = model.StatusOnline
		u.LastSeen = time.Now()
	})
	if err != nil {
		s.r.Detach(ctx, handle)
		return nil, err
	}
	if err := s.r.AddMember(ctx, s.cfg.DefaultChannel, handle); err != nil {
		s.log.Sugar().Warnw("join default channel", "channel_id", s.cfg.DefaultChannel, "err", err)
	}
	if first {
		s.broadcastAll(ctx, model.Event{Type: model.EventUserStatus, Data: statusPayload(u)})
	}

	channels, err := s.Channels(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ConnectResult{Handle: handle, User: *u, Channels: channels, OnlineUsers: s.OnlineUsers(ctx)}, nil
}

func (s *chatService) Disconnect(ctx context.Context, handle string) {
	userID, last, ok := s.r.Detach(ctx, handle)
	if !ok || !last {
		return
	}
	u, err := s.r.UpdateUser(ctx, userID, func(u *model.ChatUser) {
		u.Status = model.StatusOffline
		u.LastSeen = time.Now()
	})
	if err != nil {
		return
	}
	s.broadcastAll(ctx, model.Event{Type: model.EventUserStatus, Data: statusPayload(u)})
}

func statusPayload(u *model.ChatUser) map[string]any {
	return map[string]any{"user_id": u.ID, "username": u.Username, "status": u.Status}
}

func (s *chatService) Send(ctx context.Context, in SendInput) (*model.ChatMessage, error) {
	const op = "service.chat.send"
	u, err := s.r.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	ch, err := s.r.GetChannel(ctx, in.ChannelID)
	if err != nil {
		return nil, err
	}
	if in.Kind == "" {
		in.Kind = model.MessageText
	}
	if !in.Kind.Valid() {
		return nil, apperr.Invalid(op, "unknown message type "+string(in.Kind))
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, apperr.Invalid(op, "content is required")
	}
	if !ch.CanPost(u.Role) {
		return nil, apperr.Denied(op, fmt.Sprintf("role %s cannot post in %s", u.Role, ch.ID))
	}
	if !s.limiter.Allow(u.ID, string(u.Role), utf8.RuneCountInString(in.Content)) {
		return nil, apperr.Wrap(op, fmt.Errorf("user %s: %w", u.ID, apperr.ErrRateLimited))
	}

	msg := model.ChatMessage{
		ID:          uuid.NewString(),
		UserID:      u.ID,
		Username:    u.Username,
		Content:     in.Content,
		Kind:        in.Kind,
		ChannelID:   ch.ID,
		Timestamp:   time.Now(),
		ReplyTo:     in.ReplyTo,
		Reactions:   map[string][]string{},
		Attachments: append([]string{}, in.Attachments...),
	}
	handles, err := s.r.AppendMessage(ctx, msg, s.cfg.HistoryCap)
	if err != nil {
		return nil, err
	}
	if _, err := s.r.UpdateUser(ctx, u.ID, func(u *model.ChatUser) {
		u.MessageCount++
		u.LastSeen = msg.Timestamp
	}); err != nil {
		return nil, err
	}

	s.deliver(ctx, handles, model.Event{Type: model.EventNewMessage, ChannelID: ch.ID, Data: msg})
	return &msg, nil
}

func (s *chatService) Join(ctx context.Context, userID, channelID, handle string) (*JoinResult, error) {
	const op = "service.chat.join"
	u, err := s.r.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ch, err := s.r.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !ch.CanView(u.Role) {
		return nil, apperr.Denied(op, fmt.Sprintf("role %s cannot join %s", u.Role, ch.ID))
	}

	if handle != "" {
		if owner, ok := s.r.HandleUser(ctx, handle); !ok || owner != userID {
			return nil, apperr.Invalid(op, "connection does not belong to user")
		}
		if err := s.r.AddMember(ctx, ch.ID, handle); err != nil {
			return nil, err
		}
		if handles, err := s.r.Members(ctx, ch.ID); err == nil {
			s.deliver(ctx, handles, model.Event{
				Type:      model.EventUserJoined,
				ChannelID: ch.ID,
				Data:      map[string]any{"user_id": u.ID, "username": u.Username},
			})
		}
	}

	recent, err := s.r.Messages(ctx, ch.ID, s.cfg.RecentOnJoin, time.Time{})
	if err != nil {
		return nil, err
	}
	members, err := s.onlineMembers(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	return &JoinResult{Channel: *ch, RecentMessages: recent, OnlineMembers: members}, nil
}

func (s *chatService) onlineMembers(ctx context.Context, channelID string) ([]model.ChatUser, error) {
	ids, err := s.r.MemberUsers(ctx, channelID)
	if err != nil {
		return nil, err
	}
	out := make([]model.ChatUser, 0, len(ids))
	for _, id := range ids {
		if u, err := s.r.GetUser(ctx, id); err == nil {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *chatService) Leave(ctx context.Context, userID, channelID, handle string) error {
	const op = "service.chat.leave"
	u, err := s.r.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := s.r.GetChannel(ctx, channelID); err != nil {
		return err
	}
	if owner, ok := s.r.HandleUser(ctx, handle); !ok || owner != userID {
		return apperr.Invalid(op, "connection does not belong to user")
	}
	if err := s.r.RemoveMember(ctx, channelID, handle); err != nil {
		return err
	}
	if handles, err := s.r.Members(ctx, channelID); err == nil {
		s.deliver(ctx, handles, model.Event{
			Type:      model.EventUserLeft,
			ChannelID: channelID,
			Data:      map[string]any{"user_id": u.ID, "username": u.Username},
		})
	}
	return nil
}

func (s *chatService) React(ctx context.Context, userID, messageID, emoji string) (*model.ChatMessage, error) {
	if strings.TrimSpace(emoji) == "" {
		return nil, apperr.Invalid("service.chat.react", "emoji is required")
	}
	if _, err := s.r.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	msg, added, err := s.r.React(ctx, messageID, emoji, userID)
	if err != nil {
		return nil, err
	}
	if added {
		if handles, err := s.r.Members(ctx, msg.ChannelID); err == nil {
			s.deliver(ctx, handles, model.Event{
				Type:      model.EventReaction,
				ChannelID: msg.ChannelID,
				Data: map[string]any{
					"message_id": msg.ID,
					"emoji":      emoji,
					"user_id":    userID,
					"reactions":  msg.Reactions,
				},
			})
		}
	}
	return msg, nil
}

func (s *chatService) Messages(ctx context.Context, channelID string, limit int, before time.Time) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = s.cfg.RecentOnJoin
	}
	return s.r.Messages(ctx, channelID, limit, before)
}

func (s *chatService) Channels(ctx context.Context, userID string) ([]model.Channel, error) {
	role := model.RoleGuest
	if userID != "" {
		u, err := s.r.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		role = u.Role
	}
	all := s.r.ListChannels(ctx)
	out := make([]model.Channel, 0, len(all))
	for _, c := range all {
		if c.CanView(role) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *chatService) OnlineUsers(ctx context.Context) []model.ChatUser {
	var out []model.ChatUser
	for _, u := range s.r.ListUsers(ctx) {
		if u.Status == model.StatusOnline {
			out = append(out, u)
		}
	}
	return out
}

func (s *chatService) Stats(ctx context.Context) model.ChatStats {
	users := s.r.ListUsers(ctx)
	channels := s.r.ListChannels(ctx)
	st := model.ChatStats{
		TotalUsers:    len(users),
		TotalChannels: len(channels),
		ChannelStats:  make(map[string]int, len(channels)),
	}
	for _, u := range users {
		if u.Status == model.StatusOnline {
			st.OnlineUsers++
		}
	}
	for _, c := range channels {
		st.TotalMessages += c.MessageCount
		st.ChannelStats[c.ID] = c.MessageCount
	}
	return st
}

// broadcastAll sends evt to every handle that is a member of any channel.
func (s *chatService) broadcastAll(ctx context.Context, evt model.Event) {
	seen := map[string]struct{}{}
	var handles []string
	for _, c := range s.r.ListChannels(ctx) {
		members, err := s.r.Members(ctx, c.ID)
		if err != nil {
			continue
		}
		for _, h := range members {
			if _, dup := seen[h]; !dup {
				seen[h] = struct{}{}
				handles = append(handles, h)
			}
		}
	}
	s.deliver(ctx, handles, evt)
}

// deliver hands evt to the sink. Delivery problems never fail the caller.
func (s *chatService) deliver(ctx context.Context, handles []string, evt model.Event) {
	if s.sink == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if err := s.sink.Deliver(ctx, handles, evt); err != nil {
		s.log.Sugar().Warnw("deliver chat event", "type", evt.Type, "channel_id", evt.ChannelID, "err", err)
	}
}
