package model

import "time"

type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
)

type ChatUser struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name"`
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status"`
	JoinedAt     time.Time  `json:"joined_at"`
	LastSeen     time.Time  `json:"last_seen"`
	MessageCount int        `json:"message_count"`
	Reputation   int        `json:"reputation_score"`
}

type ChannelKind string

const (
	ChannelPublic     ChannelKind = "public"
	ChannelRestricted ChannelKind = "restricted"
	ChannelReadOnly   ChannelKind = "read_only"
)

type Channel struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Kind         ChannelKind `json:"channel_type"`
	RequiredRole Role        `json:"required_role,omitempty"`
	CreatedBy    string      `json:"created_by"`
	CreatedAt    time.Time   `json:"created_at"`
	MessageCount int         `json:"message_count"`
	Rules        []string    `json:"rules"`
}

// CanView reports whether role may see and join the channel. Read-only
// channels are visible to everyone.
func (c Channel) CanView(role Role) bool {
	switch c.Kind {
	case ChannelRestricted:
		return AtLeast(role, c.RequiredRole)
	case ChannelPublic, ChannelReadOnly:
		return true
	default:
		return false
	}
}

// CanPost reports whether role may send messages to the channel.
func (c Channel) CanPost(role Role) bool {
	switch c.Kind {
	case ChannelReadOnly:
		return AtLeast(role, RoleModerator)
	case ChannelRestricted:
		return AtLeast(role, c.RequiredRole)
	case ChannelPublic:
		return true
	default:
		return false
	}
}

const DefaultChannelID = "general"

// BootstrapChannels returns the channels present at startup.
func BootstrapChannels(now time.Time) []Channel {
	return []Channel{
		{
			ID:          "general",
			Name:        "General",
			Description: "General discussion about Valis AI",
			Kind:        ChannelPublic,
			CreatedBy:   "system",
			CreatedAt:   now,
			Rules:       []string{"Be respectful to all community members", "No spam or excessive self-promotion", "Keep discussions relevant to AI and technology", "Use appropriate language"},
		},
		{
			ID:          "creators",
			Name:        "Creators Hub",
			Description: "For creators building with Valis AI",
			Kind:        ChannelPublic,
			CreatedBy:   "system",
			CreatedAt:   now,
			Rules:       []string{"Share your creations and get feedback", "Collaborate on projects", "Help other creators"},
		},
		{
			ID:           "founders",
			Name:         "Founders Circle",
			Description:  "Exclusive channel for founders and entrepreneurs",
			Kind:         ChannelRestricted,
			RequiredRole: RoleFounder,
			CreatedBy:    "system",
			CreatedAt:    now,
			Rules:        []string{"Business strategy discussions", "Networking and partnerships", "Exclusive founder insights"},
		},
		{
			ID:          "support",
			Name:        "Support",
			Description: "Get help with Valis AI",
			Kind:        ChannelPublic,
			CreatedBy:   "system",
			CreatedAt:   now,
			Rules:       []string{"Ask questions about using Valis AI", "Report bugs and issues", "Get technical support"},
		},
		{
			ID:          "announcements",
			Name:        "Announcements",
			Description: "Official Valis AI announcements",
			Kind:        ChannelReadOnly,
			CreatedBy:   "system",
			CreatedAt:   now,
			Rules:       []string{"Official announcements only", "Product updates and news", "Community events"},
		},
	}
}

type EventType string

const (
	EventNewMessage EventType = "new_message"
	EventReaction   EventType = "reaction_added"
	EventUserStatus EventType = "user_status"
	EventUserJoined EventType = "user_joined"
	EventUserLeft   EventType = "user_left"
)

// Event is a payload delivered to channel members.
type Event struct {
	Type      EventType `json:"type"`
	ChannelID string    `json:"channel_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatStats summarizes the global chat.
type ChatStats struct {
	TotalUsers    int            `json:"total_users"`
	OnlineUsers   int            `json:"online_users"`
	TotalChannels int            `json:"total_channels"`
	TotalMessages int            `json:"total_messages"`
	ChannelStats  map[string]int `json:"channel_stats"`
}
