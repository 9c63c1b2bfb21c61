package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

// ChatRepo holds the global chat state. Each channel has its own lock
// covering its message log and membership; users and connections are kept
// under separate locks.
type ChatRepo interface {
	CreateUser(ctx context.Context, u *model.ChatUser) error
	GetUser(ctx context.Context, id string) (*model.ChatUser, error)
	UpdateUser(ctx context.Context, id string, fn func(u *model.ChatUser)) (*model.ChatUser, error)
	ListUsers(ctx context.Context) []model.ChatUser

	GetChannel(ctx context.Context, id string) (*model.Channel, error)
	ListChannels(ctx context.Context) []model.Channel

	// AppendMessage stores msg, trims the channel to maxKept messages and
	// returns the channel's member handles at the time of the append.
	AppendMessage(ctx context.Context, msg model.ChatMessage, maxKept int) ([]string, error)
	// Messages returns up to limit of the newest messages older than before
	// (zero before means no bound), oldest first.
	Messages(ctx context.Context, channelID string, limit int, before time.Time) ([]model.ChatMessage, error)
	React(ctx context.Context, messageID, emoji, userID string) (*model.ChatMessage, bool, error)

	AddMember(ctx context.Context, channelID, handle string) error
	RemoveMember(ctx context.Context, channelID, handle string) error
	Members(ctx context.Context, channelID string) ([]string, error)

	// Attach binds handle to userID and reports whether it is the user's first live handle.
	Attach(ctx context.Context, userID, handle string) bool
	// Detach unbinds handle from its user and every channel. last is true when
	// the user has no live handle left.
	Detach(ctx context.Context, handle string) (userID string, last bool, ok bool)
	HandleUser(ctx context.Context, handle string) (string, bool)
	MemberUsers(ctx context.Context, channelID string) ([]string, error)
}

type channelState struct {
	mu       sync.Mutex
	channel  model.Channel
	messages []*model.ChatMessage
	members  map[string]struct{}
}

type chatRepo struct {
	usersMu   sync.RWMutex
	users     map[string]*model.ChatUser
	usernames map[string]string

	channels map[string]*channelState // fixed after construction

	indexMu sync.RWMutex
	index   map[string]string // message id -> channel id

	connMu    sync.RWMutex
	handles   map[string]string
	userConns map[string]map[string]struct{}
}

// NewChatRepo creates the store seeded with channels.
func NewChatRepo(channels []model.Channel) ChatRepo {
	r := &chatRepo{
		users:     make(map[string]*model.ChatUser),
		usernames: make(map[string]string),
		channels:  make(map[string]*channelState, len(channels)),
		index:     make(map[string]string),
		handles:   make(map[string]string),
		userConns: make(map[string]map[string]struct{}),
	}
	for _, c := range channels {
		c.Rules = append([]string(nil), c.Rules...)
		r.channels[c.ID] = &channelState{channel: c, members: make(map[string]struct{})}
	}
	return r
}

func (r *chatRepo) CreateUser(ctx context.Context, u *model.ChatUser) error {
	key := strings.ToLower(u.Username)
	r.usersMu.Lock()
	defer r.usersMu.Unlock()
	if _, taken := r.usernames[key]; taken {
		return apperr.Invalid("repo.chat.create_user", "username already taken")
	}
	cp := *u
	r.users[u.ID] = &cp
	r.usernames[key] = u.ID
	return nil
}

func (r *chatRepo) GetUser(ctx context.Context, id string) (*model.ChatUser, error) {
	r.usersMu.RLock()
	defer r.usersMu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperr.NotFound("repo.chat.get_user", "user", id)
	}
	cp := *u
	return &cp, nil
}

func (r *chatRepo) UpdateUser(ctx context.Context, id string, fn func(u *model.ChatUser)) (*model.ChatUser, error) {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperr.NotFound("repo.chat.update_user", "user", id)
	}
	fn(u)
	cp := *u
	return &cp, nil
}

func (r *chatRepo) ListUsers(ctx context.Context) []model.ChatUser {
	r.usersMu.RLock()
	out := make([]model.ChatUser, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	r.usersMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (r *chatRepo) state(op, id string) (*channelState, error) {
	st, ok := r.channels[id]
	if !ok {
		return nil, apperr.NotFound(op, "channel", id)
	}
	return st, nil
}

func (r *chatRepo) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	st, err := r.state("repo.chat.get_channel", id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	c := st.channel
	c.Rules = append([]string(nil), st.channel.Rules...)
	return &c, nil
}

func (r *chatRepo) ListChannels(ctx context.Context) []model.Channel {
	out := make([]model.Channel, 0, len(r.channels))
	for _, st := range r.channels {
		st.mu.Lock()
		c := st.channel
		c.Rules = append([]string(nil), st.channel.Rules...)
		st.mu.Unlock()
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *chatRepo) AppendMessage(ctx context.Context, msg model.ChatMessage, maxKept int) ([]string, error) {
	st, err := r.state("repo.chat.append", msg.ChannelID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	m := msg.Clone()
	st.messages = append(st.messages, &m)
	st.channel.MessageCount++
	var evicted []*model.ChatMessage
	if maxKept > 0 && len(st.messages) > maxKept {
		drop := len(st.messages) - maxKept
		evicted = st.messages[:drop]
		st.messages = append([]*model.ChatMessage(nil), st.messages[drop:]...)
	}
	members := make([]string, 0, len(st.members))
	for h := range st.members {
		members = append(members, h)
	}
	st.mu.Unlock()

	r.indexMu.Lock()
	r.index[m.ID] = m.ChannelID
	for _, e := range evicted {
		delete(r.index, e.ID)
	}
	r.indexMu.Unlock()

	sort.Strings(members)
	return members, nil
}

func (r *chatRepo) Messages(ctx context.Context, channelID string, limit int, before time.Time) ([]model.ChatMessage, error) {
	st, err := r.state("repo.chat.messages", channelID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	picked := make([]*model.ChatMessage, 0, len(st.messages))
	for _, m := range st.messages {
		if before.IsZero() || m.Timestamp.Before(before) {
			picked = append(picked, m)
		}
	}
	if limit > 0 && len(picked) > limit {
		picked = picked[len(picked)-limit:]
	}
	out := make([]model.ChatMessage, 0, len(picked))
	for _, m := range picked {
		out = append(out, m.Clone())
	}
	return out, nil
}

func (r *chatRepo) React(ctx context.Context, messageID, emoji, userID string) (*model.ChatMessage, bool, error) {
	r.indexMu.RLock()
	channelID, ok := r.index[messageID]
	r.indexMu.RUnlock()
	if !ok {
		return nil, false, apperr.NotFound("repo.chat.react", "message", messageID)
	}
	st, err := r.state("repo.chat.react", channelID)
	if err != nil {
		return nil, false, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for _, m := range st.messages {
		if m.ID == messageID {
			added := m.AddReaction(emoji, userID)
			out := m.Clone()
			return &out, added, nil
		}
	}
	// evicted between the index lookup and the channel lock
	return nil, false, apperr.NotFound("repo.chat.react", "message", messageID)
}

func (r *chatRepo) AddMember(ctx context.Context, channelID, handle string) error {
	st, err := r.state("repo.chat.add_member", channelID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	st.members[handle] = struct{}{}
	st.mu.Unlock()
	return nil
}

func (r *chatRepo) RemoveMember(ctx context.Context, channelID, handle string) error {
	st, err := r.state("repo.chat.remove_member", channelID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	delete(st.members, handle)
	st.mu.Unlock()
	return nil
}

func (r *chatRepo) Members(ctx context.Context, channelID string) ([]string, error) {
	st, err := r.state("repo.chat.members", channelID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	out := make([]string, 0, len(st.members))
	for h := range st.members {
		out = append(out, h)
	}
	st.mu.Unlock()
	sort.Strings(out)
	return out, nil
}

func (r *chatRepo) MemberUsers(ctx context.Context, channelID string) ([]string, error) {
	handles, err := r.Members(ctx, channelID)
	if err != nil {
		return nil, err
	}
	r.connMu.RLock()
	seen := make(map[string]struct{}, len(handles))
	out := make([]string, 0, len(handles))
	for _, h := range handles {
		if uid, ok := r.handles[h]; ok {
			if _, dup := seen[uid]; !dup {
				seen[uid] = struct{}{}
				out = append(out, uid)
			}
		}
	}
	r.connMu.RUnlock()
	sort.Strings(out)
	return out, nil
}

func (r *chatRepo) Attach(ctx context.Context, userID, handle string) bool {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if prev, ok := r.handles[handle]; ok && prev != userID {
		delete(r.userConns[prev], handle)
	}
	r.handles[handle] = userID
	set, ok := r.userConns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.userConns[userID] = set
	}
	first := len(set) == 0
	set[handle] = struct{}{}
	return first
}

func (r *chatRepo) Detach(ctx context.Context, handle string) (string, bool, bool) {
	r.connMu.Lock()
	userID, ok := r.handles[handle]
	last := false
	if ok {
		delete(r.handles, handle)
		set := r.userConns[userID]
		delete(set, handle)
		if len(set) == 0 {
			delete(r.userConns, userID)
			last = true
		}
	}
	r.connMu.Unlock()

	for _, st := range r.channels {
		st.mu.Lock()
		delete(st.members, handle)
		st.mu.Unlock()
	}
	return userID, last, ok
}

func (r *chatRepo) HandleUser(ctx context.Context, handle string) (string, bool) {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	uid, ok := r.handles[handle]
	return uid, ok
}
