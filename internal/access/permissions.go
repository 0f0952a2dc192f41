package access

// Permission names. PermAdministrator satisfies every check regardless of
// the specific permission requested.
const (
	PermAdministrator  = "administrator"
	PermManageRoles    = "manage_roles"
	PermManageChannels = "manage_channels"
	PermManageMessages = "manage_messages"
	PermCreateInvites  = "create_invites"
	PermKickMembers    = "kick_members"
	PermBanMembers     = "ban_members"
	PermMoveMembers    = "move_members"
	PermMuteMembers    = "mute_members"
)

// BuiltinPermissions is the catalog installed at provisioning time.
var BuiltinPermissions = []Permission{
	{Name: PermAdministrator, Category: "general"},
	{Name: PermManageRoles, Category: "general"},
	{Name: PermManageChannels, Category: "general"},
	{Name: PermCreateInvites, Category: "general"},
	{Name: PermManageMessages, Category: "moderation"},
	{Name: PermKickMembers, Category: "moderation"},
	{Name: PermBanMembers, Category: "moderation"},
	{Name: PermMoveMembers, Category: "voice"},
	{Name: PermMuteMembers, Category: "voice"},
}
