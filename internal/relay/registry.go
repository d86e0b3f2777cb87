package relay

import "sync"

// ChannelRegistry maps channel names to the set of connections currently
// joined. It only tracks presence, never connection lifetime. All
// mutations are serialized by a single lock so concurrent joins and
// leaves on the same channel never lose an update.
type ChannelRegistry struct {
	mu       sync.Mutex
	channels map[string]map[*Client]struct{}
}

func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{
		channels: make(map[string]map[*Client]struct{}),
	}
}

// Join adds c to the channel's member set, creating the set on first
// use. Adding an existing member is a no-op. It reports whether the
// channel entry was created.
func (r *ChannelRegistry) Join(channelName string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.channels[channelName]
	if !ok {
		members = make(map[*Client]struct{})
		r.channels[channelName] = members
	}
	members[c] = struct{}{}

	return !ok
}

// Leave removes c from the channel's member set, evicting the entry
// when it empties. Removing a non-member is a no-op. It reports whether
// the channel entry was evicted.
func (r *ChannelRegistry) Leave(channelName string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.channels[channelName]
	if !ok {
		return false
	}

	delete(members, c)
	if len(members) == 0 {
		delete(r.channels, channelName)
		return true
	}

	return false
}

// Contains reports whether c is currently a member of the channel.
func (r *ChannelRegistry) Contains(channelName string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.channels[channelName][c]
	return ok
}

// MemberCount returns the number of connections joined to the channel.
func (r *ChannelRegistry) MemberCount(channelName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.channels[channelName])
}

// ChannelCount returns the number of channels with at least one member.
func (r *ChannelRegistry) ChannelCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.channels)
}
