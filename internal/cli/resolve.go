package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tOgg1/parley/internal/models"
	"github.com/tOgg1/parley/internal/syncer"
)

const maxSuggestions = 5

// resolveThread finds a thread by id, exact name or unique name prefix.
// An empty reference falls back to the thread saved with `parley use`.
func (a *app) resolveThread(engine *syncer.Engine, ref string) (models.Thread, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		saved, err := a.contexts.Load()
		if err != nil {
			return models.Thread{}, err
		}
		if saved.IsEmpty() {
			return models.Thread{}, &PreflightError{
				Message:  "no thread given and no current thread set",
				NextStep: "parley use <thread>",
			}
		}
		thread, ok := engine.Thread(models.ThreadID(saved.ThreadID))
		if !ok {
			return models.Thread{}, fmt.Errorf("current thread %s no longer exists: %w", saved.String(), syncer.ErrThreadNotFound)
		}
		return thread, nil
	}

	return matchThread(engine.Threads(), ref)
}

func matchThread(threads []models.Thread, ref string) (models.Thread, error) {
	if n, err := strconv.ParseInt(ref, 10, 64); err == nil {
		for _, thread := range threads {
			if int64(thread.ID) == n {
				return thread, nil
			}
		}
	}

	lower := strings.ToLower(ref)
	var matches []models.Thread
	for _, thread := range threads {
		name := strings.ToLower(thread.DisplayName)
		if name == lower {
			return thread, nil
		}
		if strings.HasPrefix(name, lower) {
			matches = append(matches, thread)
		}
	}

	switch {
	case len(matches) == 1:
		return matches[0], nil
	case len(matches) > 1:
		return models.Thread{}, fmt.Errorf("thread '%s' is ambiguous; matches: %s (use the thread id)", ref, formatThreadMatches(matches))
	case len(threads) == 0:
		return models.Thread{}, fmt.Errorf("thread '%s' not found (no threads yet): %w", ref, syncer.ErrThreadNotFound)
	default:
		return models.Thread{}, fmt.Errorf("thread '%s' not found. Example input: '%s' or '%d': %w",
			ref, threads[0].DisplayName, threads[0].ID, syncer.ErrThreadNotFound)
	}
}

func formatThreadMatches(matches []models.Thread) string {
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ID < matches[j].ID
	})
	parts := make([]string, 0, maxSuggestions)
	for i, thread := range matches {
		if i == maxSuggestions {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%d)", thread.DisplayName, thread.ID))
	}
	return strings.Join(parts, ", ")
}
