package moderation

import (
	"bufio"
	"embed"
	"fmt"
	"path"
	"strings"

	"atelier-chat/errors"
)

//go:embed blocklist/*.txt
var blocklistFS embed.FS

// Blocklist holds the deduplicated word list and the languages it was
// assembled from (one file per language).
type Blocklist struct {
	Words     []string
	Languages []string
}

// LoadBlocklist reads every embedded blocklist file. Lines starting
// with '#' are comments.
func LoadBlocklist() (Blocklist, error) {
	entries, err := blocklistFS.ReadDir("blocklist")
	if err != nil {
		return Blocklist{}, err
	}

	seen := make(map[string]struct{})
	var result Blocklist
	for _, entry := range entries {
		name := path.Join("blocklist", entry.Name())
		file, err := blocklistFS.Open(name)
		if err != nil {
			return Blocklist{}, fmt.Errorf("opening %s: %w", name, err)
		}

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			word := strings.TrimSpace(scanner.Text())
			if word == "" || strings.HasPrefix(word, "#") {
				continue
			}
			if _, ok := seen[word]; ok {
				continue
			}
			seen[word] = struct{}{}
			result.Words = append(result.Words, word)
		}
		err = scanner.Err()
		_ = file.Close()
		if err != nil {
			return Blocklist{}, fmt.Errorf("reading %s: %w", name, err)
		}

		lang := strings.TrimSuffix(entry.Name(), path.Ext(entry.Name()))
		result.Languages = append(result.Languages, lang)
	}

	if len(result.Words) == 0 {
		return Blocklist{}, errors.ErrEmptyWords
	}
	return result, nil
}
