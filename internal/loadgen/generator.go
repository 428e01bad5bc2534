package loadgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/okian/cull/pkg/logger"
)

// Weighted error shapes so issues get uneven event counts, the way a
// real tracker sees one noisy bug drown out the quiet ones.
var errorShapes = []struct {
	message string
	level   string
	weight  int64
}{
	{"connection reset by peer", "error", 40},
	{"context deadline exceeded", "error", 25},
	{"nil pointer dereference in handler", "fatal", 10},
	{"duplicate key value violates unique constraint", "error", 10},
	{"upstream returned 503", "warning", 8},
	{"slow query exceeded 5s", "warning", 5},
	{"disk almost full", "warning", 2},
}

var totalShapeWeight = func() int64 {
	var sum int64
	for _, s := range errorShapes {
		sum += s.weight
	}
	return sum
}()

// randomInt64 returns a random value in [0, n) using crypto/rand.
func randomInt64(n int64) int64 {
	v, _ := rand.Int(rand.Reader, big.NewInt(n))
	return v.Int64()
}

// generateEvents creates events spread unevenly over the projects and
// their issues.
func generateEvents(ctx context.Context, config *Config, projects []Project, stats *Stats) ([]Event, error) {
	logger.Get().Info(ctx, "generating events",
		logger.Int("numEvents", config.NumEvents),
		logger.Int("projects", len(projects)),
		logger.Int("issuesPerProject", config.Issues),
	)

	events := make([]Event, config.NumEvents)
	for i := range events {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during event generation: %w", ctx.Err())
		default:
		}

		project := projects[randomInt64(int64(len(projects)))]
		shape := pickShape()
		// Skew fingerprints so low-numbered issues collect most events.
		issue := randomInt64(int64(config.Issues))
		if issue > 0 && randomInt64(2) == 0 {
			issue /= 2
		}

		events[i] = Event{
			EventID:     uuid.NewString(),
			ProjectID:   project.ID,
			Fingerprint: fmt.Sprintf("%s#%d", shape.message, issue),
			Message:     shape.message,
			Level:       shape.level,
			TS:          time.Now().UTC().Format(time.RFC3339),
		}
	}

	stats.EventsGenerated = len(events)
	logger.Get().Info(ctx, "generated events successfully", logger.Int("count", len(events)))

	return events, nil
}

func pickShape() struct {
	message string
	level   string
	weight  int64
} {
	draw := randomInt64(totalShapeWeight)
	for _, s := range errorShapes {
		draw -= s.weight
		if draw < 0 {
			return s
		}
	}
	return errorShapes[0]
}
