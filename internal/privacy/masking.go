// Package privacy masks provider identifiers and secrets before they reach
// the logs.
package privacy

import (
	"strings"
)

// MaskChatID masks a chat id, keeping the last 4 characters of the user part
// and the provider domain.
// Example: "1234567890@c.us" -> "******7890@c.us"
func MaskChatID(chatID string) string {
	if chatID == "" {
		return ""
	}

	if user, domain, ok := strings.Cut(chatID, "@"); ok {
		return maskString(user, 4) + "@" + domain
	}
	return maskString(chatID, 4)
}

// MaskMessageID masks a gateway message id of the form
// "fromMe_chatId_serial", keeping its structure.
// Example: "true_1234567890@c.us_A1B2C3D4" -> "true_******7890@c.us_****C3D4"
func MaskMessageID(messageID string) string {
	if messageID == "" {
		return ""
	}

	parts := strings.Split(messageID, "_")
	if len(parts) >= 3 && (parts[0] == "true" || parts[0] == "false") {
		chat := strings.Join(parts[1:len(parts)-1], "_")
		return parts[0] + "_" + MaskChatID(chat) + "_" + maskString(parts[len(parts)-1], 4)
	}
	return maskString(messageID, 4)
}

// MaskSecret hides a credential entirely apart from its length class
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-2:]
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields returns a copy of fields that is safe to log. Message
// bodies are replaced by their length.
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}
		switch k {
		case "from", "to", "chat_id", "chatId", "participant":
			masked[k] = MaskChatID(s)
		case "id", "message_id", "messageId":
			masked[k] = MaskMessageID(s)
		case "body", "text", "caption":
			masked[k+"_len"] = len(s)
		case "token", "credentials", "api_key", "secret":
			masked[k] = MaskSecret(s)
		default:
			masked[k] = v
		}
	}

	return masked
}
