package loadgen

import (
	"context"
	"fmt"
	"log"
)

// verifyRetention checks every project against its retention quota.
func verifyRetention(ctx context.Context, config *Config, projects []Project, stats *Stats) error {
	log.Println("verifying retention bounds...")

	client := newHTTPClient(config.Timeout)

	var violations int
	for _, p := range projects {
		ps, err := fetchProjectStats(ctx, client, config.BaseURL, p.ID)
		if err != nil {
			return fmt.Errorf("stats for project %s: %w", p.ID, err)
		}

		ok := ps.StoredEvents <= ps.MaxEventCount
		if !ok {
			violations++
			log.Printf("VIOLATION: project %s holds %d events, quota %d",
				p.ID, ps.StoredEvents, ps.MaxEventCount)
		} else {
			stats.ProjectsVerified++
			if config.Verbose {
				log.Printf("project %s: %d/%d events across %d issues",
					p.ID, ps.StoredEvents, ps.MaxEventCount, ps.Issues)
			}
		}

		// Every issue keeps at least its representative event.
		if ps.Issues > 0 && ps.StoredEvents < ps.Issues {
			return fmt.Errorf("project %s: %d issues but only %d stored events",
				p.ID, ps.Issues, ps.StoredEvents)
		}
	}

	if violations > 0 {
		return fmt.Errorf("%d of %d projects exceed their quota", violations, len(projects))
	}

	log.Printf("retention verified for %d projects", stats.ProjectsVerified)
	return nil
}
