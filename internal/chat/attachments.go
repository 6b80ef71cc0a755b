package chat

// ExtractAttachmentPaths returns the distinct attachment references of
// c's non-text messages in order of first occurrence.
func ExtractAttachmentPaths(c Chat) []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, m := range c.Messages {
		if m.Type == TypeText || m.AttachmentURL == "" {
			continue
		}
		if _, ok := seen[m.AttachmentURL]; ok {
			continue
		}
		seen[m.AttachmentURL] = struct{}{}
		paths = append(paths, m.AttachmentURL)
	}
	return paths
}

// RemapMessageAttachments returns a copy of msgs with every AttachmentURL
// that is a key of mapping replaced by its value. Other messages are
// copied unchanged. Applying the same mapping twice is harmless unless a
// mapped value is itself a key.
func RemapMessageAttachments(msgs []Message, mapping map[string]string) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		if m.AttachmentURL != "" {
			if url, ok := mapping[m.AttachmentURL]; ok {
				m.AttachmentURL = url
			}
		}
		out[i] = m
	}
	return out
}

// FindLastValidMessage re-locates original (by ID) in msgs after a remap.
// It falls back to the final element of msgs, then to original itself.
func FindLastValidMessage(msgs []Message, original Message) Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ID == original.ID {
			return msgs[i]
		}
	}
	if len(msgs) > 0 {
		return msgs[len(msgs)-1]
	}
	return original
}

// ApplyMediaMapping returns a copy of c whose attachment references have
// been rewritten through mapping. An empty mapping returns c unchanged.
func ApplyMediaMapping(c Chat, mapping map[string]string) Chat {
	if len(mapping) == 0 {
		return c
	}
	msgs := RemapMessageAttachments(c.Messages, mapping)
	c.LastMessage = FindLastValidMessage(msgs, c.LastMessage)
	c.Messages = msgs
	return c
}
