package wiki

import "strings"

func itemInList(item, values string) bool {
	for _, value := range strings.Split(values, ",") {
		trimmed := strings.TrimSpace(value)
		if trimmed == item || trimmed == "all" {
			return true
		}
	}
	return false
}

// testBotExclusion is a direct translation of
// mwclient/bot_exclusion.cpp's testBotExclusion: a left-to-right scan
// over raw wikicode (not a structural template parse, so it survives
// malformed input) looking for {{nobots}} or {{bots|...}} with
// allow=/deny=/optout= fields addressed to bot or messageType.
func testBotExclusion(code, bot, messageType string) bool {
	for {
		templateBegin := strings.Index(code, "{{")
		if templateBegin == -1 {
			break
		}
		templateBegin += 2
		templateNameEnd := strings.IndexAny(code[templateBegin:], "|{}")
		if templateNameEnd == -1 {
			break
		}
		templateNameEnd += templateBegin
		templateEnd := strings.IndexAny(code[templateNameEnd:], "{}")
		if templateEnd == -1 {
			break
		}
		templateEnd += templateNameEnd
		templateName := strings.TrimSpace(code[templateBegin:templateNameEnd])
		switch templateName {
		case "Nobots", "nobots":
			return true
		case "Bots", "bots":
			if templateNameEnd < templateEnd {
				fields := code[templateNameEnd+1 : templateEnd]
				for _, field := range strings.Split(fields, "|") {
					eq := strings.IndexByte(field, '=')
					if eq == -1 {
						continue
					}
					param := strings.TrimSpace(field[:eq])
					values := field[eq+1:]
					switch {
					case param == "allow" && !itemInList(bot, values):
						return true
					case param == "deny" && itemInList(bot, values):
						return true
					case param == "optout" && messageType != "" && itemInList(messageType, values):
						return true
					}
				}
			}
		}
		code = code[templateEnd:]
	}
	return false
}
