package identity

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// MacOSContactsLookup is the production PlatformLookup: it shells out
// to osascript and asks the Contacts app whether any person's phone
// numbers or emails contain the handle. It is a best-effort match
// (substring, not exact) since AppleScript has no indexed lookup by
// value, and returns ok=false on any error or on non-Darwin hosts.
func MacOSContactsLookup(handle string) (displayName string, ok bool) {
	if runtime.GOOS != "darwin" {
		return "", false
	}

	script := fmt.Sprintf(`
on hasValueWithSubstring(theList, theSub)
	repeat with v in theList
		if (v as text) contains theSub then return true
	end repeat
	return false
end hasValueWithSubstring
tell application "Contacts"
	repeat with p in people
		set allVals to (value of phones of p) & (value of emails of p)
		if my hasValueWithSubstring(allVals, "%s") then
			return name of p
		end if
	end repeat
	return ""
end tell
`, escapeAppleScriptString(handle))

	out, err := exec.Command("osascript", "-e", script).Output()
	if err != nil {
		return "", false
	}
	name := strings.TrimSpace(string(out))
	if name == "" {
		return "", false
	}
	return name, true
}

func escapeAppleScriptString(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
