package heos

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// groupEventGracePeriod bounds the wait for a groups_changed confirmation
// after set_group. Some firmware omits the event; the fallback is a refresh.
const groupEventGracePeriod = 2 * time.Second

// AddCriteria selects where browse/add_to_queue places items.
type AddCriteria int

const (
	AddPlayNow        AddCriteria = 1
	AddPlayNext       AddCriteria = 2
	AddToEnd          AddCriteria = 3
	AddReplaceAndPlay AddCriteria = 4
)

// ---- playback ----

// Play starts playback on a player.
func (c *Client) Play(ctx context.Context, pid PlayerID) error {
	return c.setPlayState(ctx, pid, PlayStatePlay)
}

// Pause pauses playback on a player.
func (c *Client) Pause(ctx context.Context, pid PlayerID) error {
	return c.setPlayState(ctx, pid, PlayStatePause)
}

// Stop stops playback on a player.
func (c *Client) Stop(ctx context.Context, pid PlayerID) error {
	return c.setPlayState(ctx, pid, PlayStateStop)
}

// SetPlayState sets an explicit play state.
func (c *Client) SetPlayState(ctx context.Context, pid PlayerID, state PlayState) error {
	return c.setPlayState(ctx, pid, state)
}

func (c *Client) setPlayState(ctx context.Context, pid PlayerID, state PlayState) error {
	if !state.valid() {
		return fmt.Errorf("heos: invalid play state %q", state)
	}
	attrs := pidAttrs(pid)
	attrs.Set("state", string(state))
	_, err := c.submit(ctx, cmdSetPlayState, attrs)
	return err
}

// Next skips to the next track.
func (c *Client) Next(ctx context.Context, pid PlayerID) error {
	_, err := c.submit(ctx, cmdPlayNext, pidAttrs(pid))
	return err
}

// Previous skips back to the previous track.
func (c *Client) Previous(ctx context.Context, pid PlayerID) error {
	_, err := c.submit(ctx, cmdPlayPrevious, pidAttrs(pid))
	return err
}

// SetPlayMode sets repeat and shuffle together; the protocol has no way to
// set one without the other.
func (c *Client) SetPlayMode(ctx context.Context, pid PlayerID, repeat RepeatMode, shuffle bool) error {
	if !repeat.valid() {
		return fmt.Errorf("heos: invalid repeat mode %q", repeat)
	}
	attrs := pidAttrs(pid)
	attrs.Set("repeat", string(repeat))
	attrs.Set("shuffle", onOff(shuffle))
	_, err := c.submit(ctx, cmdSetPlayMode, attrs)
	return err
}

// NowPlaying fetches a player's current media directly from the device. The
// registry copy is not touched; it stays on the event/refresh path.
func (c *Client) NowPlaying(ctx context.Context, pid PlayerID) (NowPlaying, error) {
	msg, err := c.submit(ctx, cmdGetNowPlaying, pidAttrs(pid))
	if err != nil {
		return NowPlaying{}, err
	}
	var payload nowPlayingPayload
	if err := decodePayload(msg, &payload); err != nil {
		return NowPlaying{}, err
	}
	return payload.toNowPlaying(), nil
}

// PlayerInfo fetches one player's metadata directly from the device. Like
// NowPlaying it answers the caller without touching the registry.
func (c *Client) PlayerInfo(ctx context.Context, pid PlayerID) (Player, error) {
	msg, err := c.submit(ctx, cmdGetPlayerInfo, pidAttrs(pid))
	if err != nil {
		return Player{}, err
	}
	var payload playerPayload
	if err := decodePayload(msg, &payload); err != nil {
		return Player{}, err
	}
	return payload.toPlayer(), nil
}

// ---- volume ----

// SetVolume sets a player's volume. The registry reflects the new level only
// once the device confirms it with a volume event.
func (c *Client) SetVolume(ctx context.Context, pid PlayerID, level int) error {
	if err := checkVolume(level); err != nil {
		return err
	}
	attrs := pidAttrs(pid)
	attrs.Set("level", strconv.Itoa(level))
	_, err := c.submit(ctx, cmdSetVolume, attrs)
	return err
}

// VolumeUp raises volume by step (1 to 10).
func (c *Client) VolumeUp(ctx context.Context, pid PlayerID, step int) error {
	if err := checkStep(step); err != nil {
		return err
	}
	attrs := pidAttrs(pid)
	attrs.Set("step", strconv.Itoa(step))
	_, err := c.submit(ctx, cmdVolumeUp, attrs)
	return err
}

// VolumeDown lowers volume by step (1 to 10).
func (c *Client) VolumeDown(ctx context.Context, pid PlayerID, step int) error {
	if err := checkStep(step); err != nil {
		return err
	}
	attrs := pidAttrs(pid)
	attrs.Set("step", strconv.Itoa(step))
	_, err := c.submit(ctx, cmdVolumeDown, attrs)
	return err
}

// SetMute mutes or unmutes a player.
func (c *Client) SetMute(ctx context.Context, pid PlayerID, muted bool) error {
	attrs := pidAttrs(pid)
	attrs.Set("state", onOff(muted))
	_, err := c.submit(ctx, cmdSetMute, attrs)
	return err
}

// ToggleMute flips a player's mute state.
func (c *Client) ToggleMute(ctx context.Context, pid PlayerID) error {
	_, err := c.submit(ctx, cmdToggleMute, pidAttrs(pid))
	return err
}

// ---- queue ----

// Queue lists a player's play queue.
func (c *Client) Queue(ctx context.Context, pid PlayerID) ([]QueueItem, error) {
	msg, err := c.submit(ctx, cmdGetQueue, pidAttrs(pid))
	if err != nil {
		return nil, err
	}
	var payload []queueItemPayload
	if err := decodePayload(msg, &payload); err != nil {
		return nil, err
	}
	items := make([]QueueItem, 0, len(payload))
	for _, item := range payload {
		items = append(items, item.toQueueItem())
	}
	return items, nil
}

// ClearQueue empties a player's queue.
func (c *Client) ClearQueue(ctx context.Context, pid PlayerID) error {
	_, err := c.submit(ctx, cmdClearQueue, pidAttrs(pid))
	return err
}

// PlayQueueItem jumps playback to a queue entry.
func (c *Client) PlayQueueItem(ctx context.Context, pid PlayerID, qid int) error {
	attrs := pidAttrs(pid)
	attrs.Set("qid", strconv.Itoa(qid))
	_, err := c.submit(ctx, cmdPlayQueue, attrs)
	return err
}

// ---- grouping ----

// CreateGroup forms a group led by leader with the given members. The ids
// must all be known and the leader must not already sit in another group as
// a plain member; members must not belong to a different group. The command
// never mutates the registry directly: the method waits for the device's
// groups_changed confirmation and falls back to a full refresh when the
// event does not arrive inside the grace period.
func (c *Client) CreateGroup(ctx context.Context, leader PlayerID, members []PlayerID) error {
	if err := c.validateGroup(leader, members); err != nil {
		return err
	}

	// Subscribe before sending so the confirmation cannot slip past.
	confirm := c.Subscribe(EventGroupsChanged)
	defer confirm.Close()

	pids := make([]string, 0, len(members)+1)
	pids = append(pids, strconv.Itoa(int(leader)))
	for _, pid := range members {
		if pid == leader {
			continue
		}
		pids = append(pids, strconv.Itoa(int(pid)))
	}

	attrs := url.Values{"pid": {strings.Join(pids, ",")}}
	if _, err := c.submit(ctx, cmdSetGroup, attrs); err != nil {
		return err
	}

	return c.awaitGroupChange(ctx, confirm)
}

// DissolveGroup breaks a group up by re-grouping the leader alone.
func (c *Client) DissolveGroup(ctx context.Context, gid GroupID) error {
	group, ok := c.registry.group(gid)
	if !ok {
		return &InvalidGroupError{Reason: fmt.Sprintf("unknown group %d", gid)}
	}

	confirm := c.Subscribe(EventGroupsChanged)
	defer confirm.Close()

	attrs := url.Values{"pid": {strconv.Itoa(int(group.Leader))}}
	if _, err := c.submit(ctx, cmdSetGroup, attrs); err != nil {
		return err
	}

	return c.awaitGroupChange(ctx, confirm)
}

func (c *Client) validateGroup(leader PlayerID, members []PlayerID) error {
	if !c.registry.knowsPlayer(leader) {
		return &InvalidGroupError{Reason: fmt.Sprintf("unknown player %d", leader)}
	}
	leaderGroup, role, grouped := c.registry.membership(leader)
	if grouped && role != GroupRoleLeader {
		return &InvalidGroupError{Reason: fmt.Sprintf("player %d is already grouped under another leader", leader)}
	}

	for _, pid := range members {
		if pid == leader {
			continue
		}
		if !c.registry.knowsPlayer(pid) {
			return &InvalidGroupError{Reason: fmt.Sprintf("unknown player %d", pid)}
		}
		gid, _, memberGrouped := c.registry.membership(pid)
		if memberGrouped && (!grouped || gid != leaderGroup) {
			return &InvalidGroupError{Reason: fmt.Sprintf("player %d already belongs to group %d", pid, gid)}
		}
	}
	return nil
}

func (c *Client) awaitGroupChange(ctx context.Context, confirm *Subscription) error {
	timer := time.NewTimer(groupEventGracePeriod)
	defer timer.Stop()

	select {
	case _, ok := <-confirm.C():
		if ok {
			return nil
		}
	case <-timer.C:
		c.logger.Printf("HEOS: no groups_changed event within %s, refreshing", groupEventGracePeriod)
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.Refresh(ctx)
}

// SetGroupVolume sets the group-wide volume.
func (c *Client) SetGroupVolume(ctx context.Context, gid GroupID, level int) error {
	if err := checkVolume(level); err != nil {
		return err
	}
	attrs := gidAttrs(gid)
	attrs.Set("level", strconv.Itoa(level))
	_, err := c.submit(ctx, cmdSetGroupVolume, attrs)
	return err
}

// SetGroupMute mutes or unmutes a whole group.
func (c *Client) SetGroupMute(ctx context.Context, gid GroupID, muted bool) error {
	attrs := gidAttrs(gid)
	attrs.Set("state", onOff(muted))
	_, err := c.submit(ctx, cmdSetGroupMute, attrs)
	return err
}

// ToggleGroupMute flips a group's mute state.
func (c *Client) ToggleGroupMute(ctx context.Context, gid GroupID) error {
	_, err := c.submit(ctx, cmdToggleGroupMute, gidAttrs(gid))
	return err
}

// GroupInfo fetches one group's composition directly from the device,
// bypassing the registry copy.
func (c *Client) GroupInfo(ctx context.Context, gid GroupID) (Group, error) {
	msg, err := c.submit(ctx, cmdGetGroupInfo, gidAttrs(gid))
	if err != nil {
		return Group{}, err
	}
	var payload groupPayload
	if err := decodePayload(msg, &payload); err != nil {
		return Group{}, err
	}
	return payload.toGroup(), nil
}

// ---- browse ----

// Browse lists a source's top level, or a container inside it when cid is
// non-empty.
func (c *Client) Browse(ctx context.Context, sid SourceID, cid string) ([]BrowseEntry, error) {
	attrs := url.Values{"sid": {strconv.Itoa(int(sid))}}
	if cid != "" {
		attrs.Set("cid", cid)
	}
	msg, err := c.submit(ctx, cmdBrowse, attrs)
	if err != nil {
		return nil, err
	}
	var payload []browseEntryPayload
	if err := decodePayload(msg, &payload); err != nil {
		return nil, err
	}
	entries := make([]BrowseEntry, 0, len(payload))
	for _, entry := range payload {
		entries = append(entries, entry.toBrowseEntry())
	}
	return entries, nil
}

// Favorites lists the account's HEOS favorites.
func (c *Client) Favorites(ctx context.Context) ([]BrowseEntry, error) {
	return c.Browse(ctx, SourceFavorites, "")
}

// Playlists lists the account's HEOS playlists.
func (c *Client) Playlists(ctx context.Context) ([]BrowseEntry, error) {
	return c.Browse(ctx, SourcePlaylists, "")
}

// PlayPreset plays a favorite by its 1-based preset number.
func (c *Client) PlayPreset(ctx context.Context, pid PlayerID, preset int) error {
	if preset < 1 {
		return fmt.Errorf("heos: preset %d out of range", preset)
	}
	attrs := pidAttrs(pid)
	attrs.Set("preset", strconv.Itoa(preset))
	_, err := c.submit(ctx, cmdPlayPreset, attrs)
	return err
}

// PlayInput switches a player to a physical input, e.g. "inputs/aux_in_1".
func (c *Client) PlayInput(ctx context.Context, pid PlayerID, input string) error {
	if input == "" {
		return fmt.Errorf("heos: input name required")
	}
	attrs := pidAttrs(pid)
	attrs.Set("input", input)
	_, err := c.submit(ctx, cmdPlayInput, attrs)
	return err
}

// PlayStream starts a stream from a browse result on a player.
func (c *Client) PlayStream(ctx context.Context, pid PlayerID, sid SourceID, cid, mid string) error {
	attrs := pidAttrs(pid)
	attrs.Set("sid", strconv.Itoa(int(sid)))
	if cid != "" {
		attrs.Set("cid", cid)
	}
	if mid != "" {
		attrs.Set("mid", mid)
	}
	_, err := c.submit(ctx, cmdPlayStream, attrs)
	return err
}

// AddToQueue queues a browse result on a player.
func (c *Client) AddToQueue(ctx context.Context, pid PlayerID, sid SourceID, cid, mid string, criteria AddCriteria) error {
	if criteria < AddPlayNow || criteria > AddReplaceAndPlay {
		return fmt.Errorf("heos: invalid add criteria %d", criteria)
	}
	attrs := pidAttrs(pid)
	attrs.Set("sid", strconv.Itoa(int(sid)))
	if cid != "" {
		attrs.Set("cid", cid)
	}
	if mid != "" {
		attrs.Set("mid", mid)
	}
	attrs.Set("aid", strconv.Itoa(int(criteria)))
	_, err := c.submit(ctx, cmdAddToQueue, attrs)
	return err
}

// ---- account ----

// SignIn authenticates the HEOS account on the live session and remembers
// the credentials for re-authentication after reconnects.
func (c *Client) SignIn(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return &AuthError{Text: "username and password required"}
	}
	creds := credentials{username: username, password: password}
	if err := c.signIn(ctx, creds); err != nil {
		return err
	}

	c.mu.Lock()
	c.credentials = creds
	c.mu.Unlock()
	return nil
}

// SignOut detaches the HEOS account and forgets the stored credentials.
func (c *Client) SignOut(ctx context.Context) error {
	if _, err := c.submit(ctx, cmdSignOut, nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.credentials = credentials{}
	c.mu.Unlock()
	c.setAccount(AccountStatus{})
	return nil
}

// CheckAccount asks the device which account it is signed in as.
func (c *Client) CheckAccount(ctx context.Context) (AccountStatus, error) {
	msg, err := c.submit(ctx, cmdCheckAccount, nil)
	if err != nil {
		return AccountStatus{}, err
	}

	status := AccountStatus{}
	if username := msg.Attr("un"); username != "" {
		status = AccountStatus{SignedIn: true, Username: username}
	}
	c.setAccount(status)
	return status, nil
}

func checkVolume(level int) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("heos: volume level %d out of range 0-100", level)
	}
	return nil
}

func checkStep(step int) error {
	if step < 1 || step > 10 {
		return fmt.Errorf("heos: volume step %d out of range 1-10", step)
	}
	return nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
