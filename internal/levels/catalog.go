package levels

import (
	"context"
	"errors"

	"github.com/glimra/backend/internal/models"
)

// ErrNoLevels is returned when the catalog has no rows for a user type.
var ErrNoLevels = errors.New("no levels configured for user type")

// LevelRepo is the minimal catalog read interface.
type LevelRepo interface {
	ListLevels(ctx context.Context, userType string) ([]*models.Level, error)
}

// Catalog answers level questions from the static per-user-type threshold
// table. LevelFor is a step function: the highest level whose threshold is
// <= the point total.
type Catalog struct {
	repo LevelRepo
}

func NewCatalog(repo LevelRepo) *Catalog {
	return &Catalog{repo: repo}
}

// LevelFor returns the level number for a point total.
func (c *Catalog) LevelFor(ctx context.Context, points int, userType string) (int, error) {
	ls, err := c.repo.ListLevels(ctx, userType)
	if err != nil {
		return 0, err
	}
	l := levelFor(ls, points)
	if l == nil {
		return 0, ErrNoLevels
	}
	return l.LevelNumber, nil
}

// RewardsFor returns the reward list attached to a level, or nil when the
// level has none.
func (c *Catalog) RewardsFor(ctx context.Context, level int, userType string) ([]models.Reward, error) {
	ls, err := c.repo.ListLevels(ctx, userType)
	if err != nil {
		return nil, err
	}
	for _, l := range ls {
		if l.LevelNumber == level {
			return l.Rewards, nil
		}
	}
	return nil, nil
}

// Progress derives the balance view for a point total: current level, name,
// points to the next threshold, and percentage through the current band.
// At the max level progress is 100 and points-to-next is 0.
func (c *Catalog) Progress(ctx context.Context, points int, userType string) (*models.LevelProgress, error) {
	ls, err := c.repo.ListLevels(ctx, userType)
	if err != nil {
		return nil, err
	}
	cur := levelFor(ls, points)
	if cur == nil {
		return nil, ErrNoLevels
	}
	p := &models.LevelProgress{
		Points:    points,
		Level:     cur.LevelNumber,
		LevelName: cur.Name,
	}
	next := nextLevel(ls, cur.LevelNumber)
	if next == nil {
		p.ProgressPercentage = 100
		return p, nil
	}
	p.PointsToNextLevel = next.PointsRequired - points
	span := next.PointsRequired - cur.PointsRequired
	if span > 0 {
		p.ProgressPercentage = float64(points-cur.PointsRequired) / float64(span) * 100
	}
	if p.ProgressPercentage < 0 {
		p.ProgressPercentage = 0
	}
	if p.ProgressPercentage > 100 {
		p.ProgressPercentage = 100
	}
	return p, nil
}

// levelFor picks the highest level whose threshold is <= points. Levels are
// ordered ascending by level number.
func levelFor(ls []*models.Level, points int) *models.Level {
	var cur *models.Level
	for _, l := range ls {
		if l.PointsRequired <= points {
			cur = l
		}
	}
	return cur
}

func nextLevel(ls []*models.Level, current int) *models.Level {
	for _, l := range ls {
		if l.LevelNumber == current+1 {
			return l
		}
	}
	return nil
}
