package gate

import (
	"fmt"
	"html"
	"strings"

	"github.com/Noha9900/advance-filestorebot/internal/platform"
)

// CallbackVerify is the callback data of the verify button.
const CallbackVerify = "gate:verify"

// Prompt renders the join prompt for an uncleared outcome: the message text
// plus one join button per unmet requirement and a single verify button.
func Prompt(o Outcome) (string, platform.Keyboard) {
	var b strings.Builder
	b.WriteString("🛑 <b>Access Denied</b>\n\n")

	verifyText := "🔄 I've joined, verify"
	if o.Stage == StagePrimaryCheck {
		b.WriteString("You must join our channel to access the files.")
	} else {
		b.WriteString("You must join all of the channels below to access the files:")
		for _, r := range o.Unmet {
			fmt.Fprintf(&b, "\n• %s", html.EscapeString(displayName(r.Name, 0)))
		}
		verifyText = "🔄 Verify all"
	}

	kb := make(platform.Keyboard, 0, len(o.Unmet)+1)
	for i, r := range o.Unmet {
		if r.JoinLink == "" {
			continue
		}
		kb = append(kb, []platform.Button{{Text: "🔔 Join " + displayName(r.Name, i+1), URL: r.JoinLink}})
	}
	kb = append(kb, []platform.Button{{Text: verifyText, Data: CallbackVerify}})
	return b.String(), kb
}

func displayName(name string, n int) string {
	if name != "" {
		return name
	}
	if n > 0 {
		return fmt.Sprintf("Channel %d", n)
	}
	return "Channel"
}
