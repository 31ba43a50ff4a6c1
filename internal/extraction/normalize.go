package extraction

import "strings"

// cleanPeople deduplicates and trims people names, dropping email-address
// shaped tokens and strings of two characters or fewer. Case is preserved.
func cleanPeople(people []string) []string {
	seen := make(map[string]struct{}, len(people))
	cleaned := make([]string, 0, len(people))
	for _, person := range people {
		name := strings.TrimSpace(person)
		if len(name) <= 2 || strings.Contains(name, "@") {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		cleaned = append(cleaned, name)
	}
	return cleaned
}

// cleanKeywords deduplicates, trims, and lower-cases keywords, dropping
// strings of two characters or fewer.
func cleanKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	cleaned := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		kw := strings.ToLower(strings.TrimSpace(keyword))
		if len(kw) <= 2 {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		cleaned = append(cleaned, kw)
	}
	return cleaned
}

// cleanStrings trims entries and drops empties; used for action items,
// blockers, and next steps.
func cleanStrings(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return cleaned
}

// parseMentions normalizes deliverable mentions into {title, due date}
// pairs. String mentions are scanned for an embedded date expression; the
// first recognized date, if any, is attached. Object mentions keep their
// own due_date field, also resolved through the date scanner.
func parseMentions(mentions []rawMention) []DeliverableMention {
	parsed := make([]DeliverableMention, 0, len(mentions))
	for _, m := range mentions {
		if m.text != "" {
			parsed = append(parsed, DeliverableMention{
				Title:   strings.TrimSpace(m.text),
				DueDate: FirstDate(m.text),
			})
			continue
		}
		title := strings.TrimSpace(m.Title)
		if title == "" {
			continue
		}
		mention := DeliverableMention{Title: title}
		if m.DueDate != "" {
			mention.DueDate = FirstDate(m.DueDate)
		}
		parsed = append(parsed, mention)
	}
	return parsed
}
