package linkedin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"linkedin-outreach/internal/models"
	"linkedin-outreach/internal/workerpool"
)

// Profile engagement selectors
const (
	SelectorProfileName     = "h1.text-heading-xlarge, h1"
	SelectorFollowButton    = "button[aria-label^='Follow']"
	SelectorFollowingButton = "button[aria-label^='Following'], button[aria-label^='Unfollow']"
	SelectorLikeButton      = "button[aria-label*='React Like'][aria-pressed='false'], button.react-button__trigger[aria-pressed='false']"
	SelectorEndorseButton   = "button[aria-label^='Endorse']"
)

// MaxEndorsements caps how many skills one endorse action touches
const MaxEndorsements = 3

// ActivityURL is the lead's recent posts page
func ActivityURL(profile string) string {
	return strings.TrimSuffix(profile, "/") + "/recent-activity/all/"
}

// SkillsURL is the lead's skills page
func SkillsURL(profile string) string {
	return strings.TrimSuffix(profile, "/") + "/details/skills/"
}

func (s *Session) viewProfile(ctx context.Context, profile string, _ workerpool.Request) (*workerpool.Result, error) {
	if err := s.open(ctx, profile); err != nil {
		return nil, err
	}
	if err := s.human.Timing().ThinkDelay(ctx); err != nil {
		return nil, err
	}

	name := ""
	if el := elementOrNil(s.page, SelectorProfileName); el != nil {
		if t, err := el.Text(); err == nil {
			name = strings.TrimSpace(t)
		}
	}

	s.logger.Info().Str("profile", profile).Str("name", name).Msg("Profile viewed")
	msg := "profile viewed"
	if name != "" {
		msg = "viewed " + name
	}
	return &workerpool.Result{Action: string(models.ActionProfileViewed), Message: msg}, nil
}

func (s *Session) followProfile(ctx context.Context, profile string, _ workerpool.Request) (*workerpool.Result, error) {
	if err := s.open(ctx, profile); err != nil {
		return nil, err
	}

	if s.pages.ElementExists(s.page, SelectorFollowingButton) {
		s.logger.Info().Str("profile", profile).Msg("Already following")
		return &workerpool.Result{Action: ResultAlreadyFollowing, Message: "already following"}, nil
	}

	if err := s.clickFollow(ctx); err != nil {
		return nil, err
	}

	s.logger.Info().Str("profile", profile).Msg("Profile followed")
	return &workerpool.Result{Action: string(models.ActionProfileFollow), Message: "profile followed"}, nil
}

// clickFollow uses the Follow button or, when it is folded away, the More dropdown
func (s *Session) clickFollow(ctx context.Context) error {
	if el := elementOrNil(s.page, SelectorFollowButton); el != nil {
		return s.human.ClickElement(ctx, s.page, el)
	}

	more, err := s.pages.WaitForElement(ctx, s.page, SelectorMoreButton, 3*time.Second)
	if err != nil {
		return fmt.Errorf("follow button not found: %w", err)
	}
	if err := s.human.ClickElement(ctx, s.page, more); err != nil {
		return err
	}
	return s.clickFirst(ctx, "div[aria-label^='Follow']", "div[role='button'], span", "Follow")
}

func (s *Session) likePost(ctx context.Context, profile string, _ workerpool.Request) (*workerpool.Result, error) {
	if err := s.open(ctx, ActivityURL(profile)); err != nil {
		return nil, err
	}

	btn, err := s.pages.WaitForElement(ctx, s.page, SelectorLikeButton, 8*time.Second)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Nothing unliked to react to still counts as done for the sequence.
		s.logger.Info().Str("profile", profile).Msg("No unliked posts found")
		return &workerpool.Result{Action: string(models.ActionPostLiked), Message: "no recent posts to like"}, nil
	}
	if err := s.human.ClickElement(ctx, s.page, btn); err != nil {
		return nil, fmt.Errorf("failed to click like: %w", err)
	}

	s.logger.Info().Str("profile", profile).Msg("Post liked")
	return &workerpool.Result{Action: string(models.ActionPostLiked), Message: "latest post liked"}, nil
}

func (s *Session) endorseSkills(ctx context.Context, profile string, _ workerpool.Request) (*workerpool.Result, error) {
	if err := s.open(ctx, SkillsURL(profile)); err != nil {
		return nil, err
	}

	buttons, err := s.page.Elements(SelectorEndorseButton)
	if err != nil {
		return nil, fmt.Errorf("failed to find endorse buttons: %w", err)
	}

	endorsed := 0
	for _, btn := range buttons {
		if endorsed == MaxEndorsements {
			break
		}
		if err := s.human.ClickElement(ctx, s.page, btn); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Debug().Err(err).Msg("Failed to click endorse button")
			continue
		}
		endorsed++
		if err := s.human.Timing().StepDelay(ctx); err != nil {
			return nil, err
		}
	}

	s.logger.Info().Str("profile", profile).Int("endorsed", endorsed).Msg("Skills endorsed")
	return &workerpool.Result{
		Action:  string(models.ActionSkillsEndorsed),
		Message: fmt.Sprintf("%d skills endorsed", endorsed),
	}, nil
}
