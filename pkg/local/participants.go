package local

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nemanja-m/hivemind/pkg/core"
)

const participantFields = 4

// FindLocalFiles expands doublestar patterns into the regular files they
// match, in pattern order.
func FindLocalFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, err
		}
		for _, name := range matches {
			info, err := os.Lstat(name)
			if err != nil {
				continue
			}
			if info.Mode().IsRegular() {
				files = append(files, name)
			}
		}
	}
	return files, nil
}

// LoadParticipants reads "id,name,hash,dna" records from every file matched
// by patterns. Lines with a different field count and a non-numeric first
// row are skipped.
func LoadParticipants(patterns []string) ([]core.Participant, error) {
	files, err := FindLocalFiles(patterns)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched %v", patterns)
	}

	var participants []core.Participant
	seen := make(map[int]struct{})
	for _, file := range files {
		lines, err := ReadLines(file)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			p, ok, err := ParseParticipant(line.Text)
			if err != nil && line.Number == 1 {
				// header row
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", line.Filename, line.Number, err)
			}
			if !ok {
				continue
			}
			if _, dup := seen[p.ID]; dup {
				return nil, fmt.Errorf("%s:%d: duplicate participant id %d", line.Filename, line.Number, p.ID)
			}
			seen[p.ID] = struct{}{}
			participants = append(participants, p)
		}
	}
	return participants, nil
}

func ParseParticipant(text string) (core.Participant, bool, error) {
	fields := strings.Split(strings.TrimSpace(text), ",")
	if len(fields) != participantFields {
		return core.Participant{}, false, nil
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return core.Participant{}, false, fmt.Errorf("invalid participant id %q: %w", fields[0], err)
	}
	return core.Participant{
		ID:           id,
		Name:         fields[1],
		PasswordHash: strings.ToLower(fields[2]),
		DNA:          fields[3],
	}, true, nil
}
