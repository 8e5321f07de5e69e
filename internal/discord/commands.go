package discord

import "github.com/bwmarrin/discordgo"

// Slash command names.
const (
	cmdLogin  = "login"
	cmdLogout = "logout"
	cmdManage = "manage"
	cmdConfig = "config"
)

// Custom ids of buttons, menus and modals.
const (
	idLoginModal   = "login:modal"
	idLoginForget  = "login:forget"
	idLoginResume  = "login:resume"
	idMFAEmail     = "mfa:email"
	idMFATOTP      = "mfa:totp"
	idMFAEmailForm = "mfa:email:modal"
	idMFATOTPForm  = "mfa:totp:modal"
	idManageSelect = "manage:select"
	idManageDelete = "manage:delete"

	fieldUsername = "username"
	fieldPassword = "password"
	fieldCode     = "code"
)

// /manage actions.
const (
	actionList   = "list"
	actionAdd    = "add"
	actionDelete = "delete"
	actionSelect = "select"
	actionClear  = "clear"
	actionActive = "active"
	actionJoined = "joined"
)

// Commands returns the application commands the bot registers.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdLogin,
			Description: "Link your VRChat account",
		},
		{
			Name:        cmdLogout,
			Description: "Remove your stored VRChat credentials",
		},
		{
			Name:        cmdManage,
			Description: "Manage VRChat groups",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "What to do",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "List managed groups", Value: actionList},
						{Name: "Add a group", Value: actionAdd},
						{Name: "Delete a group", Value: actionDelete},
						{Name: "Select the active group", Value: actionSelect},
						{Name: "Clear the active group", Value: actionClear},
						{Name: "Show the active group", Value: actionActive},
						{Name: "Show groups you joined", Value: actionJoined},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "group_id",
					Description: "VRChat group id (grp_...)",
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "role",
					Description: "Select or clear the group for members with this role only",
				},
			},
		},
		{
			Name:        cmdConfig,
			Description: "Bot settings (owner only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mode",
					Description: "Who owns the group list",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Server", Value: "guild"},
						{Name: "Per user", Value: "user"},
					},
				},
			},
		},
	}
}

func loginModal() *discordgo.InteractionResponse {
	return modal(idLoginModal, "VRChat login",
		textInput(fieldUsername, "Username or email", discordgo.TextInputShort, 1, 128),
		textInput(fieldPassword, "Password", discordgo.TextInputShort, 1, 128),
	)
}

func codeModal(customID, title string) *discordgo.InteractionResponse {
	return modal(customID, title, textInput(fieldCode, "Verification code", discordgo.TextInputShort, 6, 12))
}

func modal(customID, title string, inputs ...discordgo.TextInput) *discordgo.InteractionResponse {
	rows := make([]discordgo.MessageComponent, 0, len(inputs))
	for _, in := range inputs {
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{in}})
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   customID,
			Title:      title,
			Components: rows,
		},
	}
}

func textInput(customID, label string, style discordgo.TextInputStyle, minLen, maxLen int) discordgo.TextInput {
	return discordgo.TextInput{
		CustomID:  customID,
		Label:     label,
		Style:     style,
		Required:  true,
		MinLength: minLen,
		MaxLength: maxLen,
	}
}

func buttonRow(buttons ...discordgo.Button) []discordgo.MessageComponent {
	row := discordgo.ActionsRow{}
	for _, b := range buttons {
		row.Components = append(row.Components, b)
	}
	return []discordgo.MessageComponent{row}
}

func codeButton(outcomeID string) []discordgo.MessageComponent {
	return buttonRow(discordgo.Button{
		Label:    "Enter code",
		Style:    discordgo.PrimaryButton,
		CustomID: outcomeID,
	})
}

func relinkButtons() []discordgo.MessageComponent {
	return buttonRow(
		discordgo.Button{Label: "Use stored login", Style: discordgo.SecondaryButton, CustomID: idLoginResume},
		discordgo.Button{Label: "Forget and log in again", Style: discordgo.DangerButton, CustomID: idLoginForget},
	)
}

func groupMenu(customID, placeholder string, options []discordgo.SelectMenuOption) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    customID,
				Placeholder: placeholder,
				Options:     options,
			},
		}},
	}
}

// modalValue digs a text input out of submitted modal rows. Components decode
// as pointers from the gateway; values are accepted for hand built payloads.
func modalValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, c := range data.Components {
		var inner []discordgo.MessageComponent
		switch row := c.(type) {
		case *discordgo.ActionsRow:
			inner = row.Components
		case discordgo.ActionsRow:
			inner = row.Components
		}
		for _, ic := range inner {
			switch in := ic.(type) {
			case *discordgo.TextInput:
				if in.CustomID == customID {
					return in.Value
				}
			case discordgo.TextInput:
				if in.CustomID == customID {
					return in.Value
				}
			}
		}
	}
	return ""
}

func optionString(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name != name || o.Value == nil {
			continue
		}
		if s, ok := o.Value.(string); ok {
			return s
		}
	}
	return ""
}
