package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrceventbot/vrceventbot/internal/models"
)

func link(t *testing.T, tb *testBot, userID string) {
	t.Helper()
	res := tb.auth.BootstrapLogin(context.Background(), userID, "carol", "pw0")
	require.Equal(t, models.AuthSuccess, res.Outcome)
}

func TestManage_RequiresLinkedAccount(t *testing.T) {
	tb := newTestBot(t, nil)

	tb.bot.HandleInteraction(slash(ownerID, guildID, cmdManage, map[string]string{"action": actionList}))
	assert.Equal(t, msgNotLinked, tb.api.lastReply(t))
	assert.Equal(t, "manage:denied", tb.rec.last())
}

func TestManage_GuildModePermissions(t *testing.T) {
	tb := newTestBot(t, nil)
	link(t, tb, ownerID)
	link(t, tb, "u5")

	tb.bot.HandleInteraction(slash("u5", guildID, cmdManage, map[string]string{"action": actionList}))
	assert.Equal(t, msgOwnerOnly, tb.api.lastReply(t))

	tb.bot.HandleInteraction(slash(ownerID, "", cmdManage, map[string]string{"action": actionList}))
	assert.Equal(t, msgServerOnly, tb.api.lastReply(t))

	tb.bot.HandleInteraction(slash(ownerID, guildID, cmdManage, map[string]string{"action": actionList}))
	assert.Equal(t, msgNoGroups, tb.api.lastReply(t))
	assert.Equal(t, "manage:ok", tb.rec.last())
}

func TestManage_AddListSelectDelete(t *testing.T) {
	tb := newTestBot(t, nil)
	link(t, tb, ownerID)
	link(t, tb, "u5")

	manage := func(userID string, opts map[string]string) {
		tb.bot.HandleInteraction(slash(userID, guildID, cmdManage, opts))
	}

	manage(ownerID, map[string]string{"action": actionAdd})
	assert.Equal(t, msgGroupIDRequired, tb.api.lastReply(t))

	manage(ownerID, map[string]string{"action": actionAdd, "group_id": "nope"})
	content, _ := tb.api.lastEdit(t)
	assert.Contains(t, content, "Invalid group_id")

	manage(ownerID, map[string]string{"action": actionAdd, "group_id": "grp_b"})
	content, _ = tb.api.lastEdit(t)
	assert.Equal(t, msgNotMember, content)

	manage(ownerID, map[string]string{"action": actionAdd, "group_id": "grp_missing"})
	content, _ = tb.api.lastEdit(t)
	assert.Equal(t, msgGroupNotFound, content)

	manage(ownerID, map[string]string{"action": actionAdd, "group_id": "grp_a"})
	content, _ = tb.api.lastEdit(t)
	assert.Equal(t, "➕ Added **Alpha (ALPHA.0001)**.", content)

	manage(ownerID, map[string]string{"action": actionAdd, "group_id": "grp_a"})
	content, _ = tb.api.lastEdit(t)
	assert.Equal(t, msgGroupExists, content)

	manage(ownerID, map[string]string{"action": actionList})
	assert.Contains(t, tb.api.lastReply(t), "`grp_a`")

	manage("u5", map[string]string{"action": actionActive})
	assert.Equal(t, msgNoActiveGroup, tb.api.lastReply(t))

	manage(ownerID, map[string]string{"action": actionSelect, "group_id": "grp_a"})
	assert.Equal(t, formatSelected("grp_a", ""), tb.api.lastReply(t))

	manage(ownerID, map[string]string{"action": actionSelect, "group_id": "grp_a", "role": "r1"})
	assert.Equal(t, formatSelected("grp_a", "r1"), tb.api.lastReply(t))

	// members without an owner check can see what they act on
	manage("u5", map[string]string{"action": actionActive})
	assert.Contains(t, tb.api.lastReply(t), "Alpha")

	manage(ownerID, map[string]string{"action": actionDelete})
	resp := tb.api.lastResponse(t)
	assert.Equal(t, []string{idManageDelete}, customIDs(resp.Data.Components))

	tb.bot.HandleInteraction(press(ownerID, guildID, idManageDelete, "grp_a"))
	resp = tb.api.lastResponse(t)
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, resp.Type)
	assert.Equal(t, formatGroupRemoved("grp_a"), resp.Data.Content)

	manage(ownerID, map[string]string{"action": actionDelete, "group_id": "grp_a"})
	assert.Equal(t, msgGroupNotFound, tb.api.lastReply(t))
}

func TestManage_SelectMenu(t *testing.T) {
	tb := newTestBot(t, nil)
	link(t, tb, ownerID)

	tb.bot.HandleInteraction(slash(ownerID, guildID, cmdManage, map[string]string{"action": actionSelect}))
	assert.Equal(t, msgNoGroups, tb.api.lastReply(t))

	tb.bot.HandleInteraction(slash(ownerID, guildID, cmdManage, map[string]string{"action": actionAdd, "group_id": "grp_a"}))
	tb.bot.HandleInteraction(slash(ownerID, guildID, cmdManage, map[string]string{"action": actionSelect}))
	resp := tb.api.lastResponse(t)
	assert.Equal(t, []string{idManageSelect}, customIDs(resp.Data.Components))

	tb.bot.HandleInteraction(press("u5", guildID, idManageSelect, "grp_a"))
	assert.Equal(t, msgOwnerOnly, tb.api.lastReply(t))

	tb.bot.HandleInteraction(press(ownerID, guildID, idManageSelect, "grp_a"))
	resp = tb.api.lastResponse(t)
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, resp.Type)
	assert.Equal(t, formatSelected("grp_a", ""), resp.Data.Content)

	g, err := tb.groups.ActiveGroup(context.Background(), guildID, nil)
	require.NoError(t, err)
	assert.Equal(t, "grp_a", g.ID)

	tb.bot.HandleInteraction(press(ownerID, guildID, idManageSelect))
	assert.Equal(t, msgUnknownAction, tb.api.lastResponse(t).Data.Content)
}

func TestManage_StoredLoginRejected(t *testing.T) {
	tb := newTestBot(t, nil)
	link(t, tb, ownerID)
	tb.fake.ExpireSessions("carol")

	tb.bot.HandleInteraction(slash(ownerID, guildID, cmdManage, map[string]string{"action": actionAdd, "group_id": "grp_a"}))
	content, _ := tb.api.lastEdit(t)
	assert.Equal(t, msgStoredInvalid, content)
	assert.Equal(t, "manage:failed", tb.rec.last())
}

func TestManage_AddWhileVRChatDown(t *testing.T) {
	tb := newTestBot(t, nil)
	link(t, tb, ownerID)
	tb.fake.SetError(errors.New("provider down"))

	tb.bot.HandleInteraction(slash(ownerID, guildID, cmdManage, map[string]string{"action": actionAdd, "group_id": "grp_a"}))
	content, _ := tb.api.lastEdit(t)
	assert.Equal(t, msgVRChatUnavailable, content)
	assert.Equal(t, "manage:unavailable", tb.rec.last())

	tb.fake.SetError(nil)
	tb.bot.HandleInteraction(slash(ownerID, guildID, cmdManage, map[string]string{"action": actionAdd, "group_id": "grp_a"}))
	content, _ = tb.api.lastEdit(t)
	assert.NotEqual(t, msgStoredInvalid, content, "the stored login survives the outage")
	assert.Equal(t, "manage:ok", tb.rec.last())
}

func TestManage_Joined(t *testing.T) {
	tb := newTestBot(t, nil)
	link(t, tb, "u5")

	tb.bot.HandleInteraction(slash("u5", "", cmdManage, map[string]string{"action": actionJoined}))
	assert.Equal(t, msgNoJoinedGroups, tb.api.lastReply(t))

	tb.bot.HandleInteraction(press("u5", "", idLoginResume))
	tb.bot.HandleInteraction(slash("u5", "", cmdManage, map[string]string{"action": actionJoined}))
	assert.Contains(t, tb.api.lastReply(t), "Alpha (ALPHA.0001)")
}

func TestConfig_Mode(t *testing.T) {
	tb := newTestBot(t, nil)
	link(t, tb, "u5")

	tb.bot.HandleInteraction(slash("u5", guildID, cmdConfig, map[string]string{"mode": "user"}))
	assert.Equal(t, msgOwnerOnly, tb.api.lastReply(t))
	assert.Equal(t, "config:denied", tb.rec.last())

	tb.bot.HandleInteraction(slash(ownerID, "", cmdConfig, map[string]string{"mode": "user"}))
	assert.Equal(t, formatMode(models.ModeUser), tb.api.lastReply(t))
	assert.Equal(t, models.ModeUser, tb.groups.Mode())

	// per user mode: anyone manages their own list, also from a DM
	tb.bot.HandleInteraction(slash("u5", "", cmdManage, map[string]string{"action": actionAdd, "group_id": "grp_a"}))
	content, _ := tb.api.lastEdit(t)
	assert.Contains(t, content, "Added")

	tb.bot.HandleInteraction(slash("u5", "", cmdManage, map[string]string{"action": actionList}))
	assert.Contains(t, tb.api.lastReply(t), "**Your groups**")

	tb.bot.HandleInteraction(slash("u5", guildID, cmdManage, map[string]string{"action": actionSelect, "group_id": "grp_a"}))
	assert.Equal(t, msgSelectNeedsServerMode, tb.api.lastReply(t))
}

func TestManage_ClearSelection(t *testing.T) {
	tb := newTestBot(t, nil)
	link(t, tb, ownerID)
	link(t, tb, "u5")
	ctx := context.Background()

	manage := func(userID string, opts map[string]string) {
		tb.bot.HandleInteraction(slash(userID, guildID, cmdManage, opts))
	}
	manage(ownerID, map[string]string{"action": actionAdd, "group_id": "grp_a"})
	manage(ownerID, map[string]string{"action": actionSelect, "group_id": "grp_a"})
	manage(ownerID, map[string]string{"action": actionSelect, "group_id": "grp_a", "role": "r1"})

	manage("u5", map[string]string{"action": actionClear})
	assert.Equal(t, msgOwnerOnly, tb.api.lastReply(t))

	manage(ownerID, map[string]string{"action": actionClear, "role": "r1"})
	assert.Equal(t, formatCleared("r1"), tb.api.lastReply(t))
	assert.Equal(t, "manage:ok", tb.rec.last())

	// the server-wide selection still applies to r1 members
	g, err := tb.groups.ActiveGroup(ctx, guildID, []string{"r1"})
	require.NoError(t, err)
	assert.Equal(t, "grp_a", g.ID)

	manage(ownerID, map[string]string{"action": actionClear})
	assert.Equal(t, formatCleared(""), tb.api.lastReply(t))

	manage("u5", map[string]string{"action": actionActive})
	assert.Equal(t, msgNoActiveGroup, tb.api.lastReply(t))

	require.NoError(t, tb.groups.SetMode(ctx, ownerID, models.ModeUser))
	manage(ownerID, map[string]string{"action": actionClear})
	assert.Equal(t, msgSelectNeedsServerMode, tb.api.lastReply(t))
}
