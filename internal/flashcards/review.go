package flashcards

import (
	"errors"
	"fmt"
	"math"
	"time"

	"studyverse/internal/model"
)

// Rating is the learner's self-assessment after seeing the answer.
type Rating string

const (
	RatingAgain Rating = "again"
	RatingHard  Rating = "hard"
	RatingGood  Rating = "good"
	RatingEasy  Rating = "easy"
)

// ErrUnknownRating is returned by Review for ratings outside again/hard/good/easy.
var ErrUnknownRating = errors.New("flashcards: unknown rating")

const (
	DefaultEase = 2.5
	MinEase     = 1.3
)

// Review applies a rating to c and schedules its next due date relative to
// now.
func Review(c Card, rating Rating, now time.Time) (Card, error) {
	if c.Ease < MinEase {
		c.Ease = DefaultEase
	}

	switch rating {
	case RatingAgain:
		c.Interval = 1
		c.Repetitions = 0
		c.Lapses++
		c.Ease -= 0.2
	case RatingHard:
		c.Interval = max(1, roundDays(float64(c.Interval)*1.2))
		c.Repetitions++
		c.Ease -= 0.15
	case RatingGood:
		c.Interval = goodInterval(c)
		c.Repetitions++
	case RatingEasy:
		good := goodInterval(c)
		c.Interval = max(good+1, roundDays(float64(good)*1.3))
		c.Repetitions++
		c.Ease += 0.15
	default:
		return c, fmt.Errorf("%w %q", ErrUnknownRating, rating)
	}

	if c.Ease < MinEase {
		c.Ease = MinEase
	}
	c.LastReviewed = model.DateKey(now)
	c.DueDate = model.DateKey(now.AddDate(0, 0, c.Interval))
	return c, nil
}

func goodInterval(c Card) int {
	switch c.Repetitions {
	case 0:
		return 1
	case 1:
		return 6
	default:
		return max(1, roundDays(float64(c.Interval)*c.Ease))
	}
}

func roundDays(v float64) int {
	return int(math.Round(v))
}
