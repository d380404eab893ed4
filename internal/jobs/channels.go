package jobs

import (
	"strings"

	"github.com/upkeepqr/maintcue/internal/model"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// SelectChannels decides which channels a household's reminders go out on.
// SMS requires both a phone number and opt-in. An unrecognized or missing
// preference falls back to email when an address is on file.
func SelectChannels(h *model.Household) (sendEmail, sendSMS bool) {
	hasEmail := strings.TrimSpace(h.Email) != ""
	canText := strings.TrimSpace(h.Phone) != "" && h.SMSOptIn

	switch h.NotificationPreference {
	case model.PreferenceEmailOnly:
		return hasEmail, false
	case model.PreferenceSMSOnly:
		return false, canText
	case model.PreferenceBoth:
		return hasEmail, canText
	default:
		return hasEmail, false
	}
}
