package linkedin

import (
	"context"
	"fmt"
	"time"

	"linkedin-outreach/internal/failure"
	"linkedin-outreach/internal/models"
	"linkedin-outreach/internal/stealth"
	"linkedin-outreach/internal/workerpool"
)

// Messaging overlay selectors
const (
	SelectorMessageButton     = "button[aria-label*='Message']"
	SelectorMessageInput      = ".msg-form__contenteditable, div[role='textbox']"
	SelectorMessageSubject    = "input[name='subject']"
	SelectorSendMessageButton = "button[type='submit'].msg-form__send-button, button.msg-form__send-button"
	SelectorCloseChat         = ".msg-overlay-bubble-header button[aria-label*='Close']"
)

func (s *Session) sendMessage(ctx context.Context, profile string, req workerpool.Request) (*workerpool.Result, error) {
	if req.Message == "" {
		return nil, failure.Errorf(failure.UnsupportedAction, "send message", "empty message for %s", profile)
	}
	if err := s.open(ctx, profile); err != nil {
		return nil, err
	}

	btn, err := s.pages.WaitForElement(ctx, s.page, SelectorMessageButton, 10*time.Second)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// No message button means the lead is not a connection and InMail is not in play.
		return nil, failure.Errorf(failure.UnsupportedAction, "send message", "no message button on %s", profile)
	}
	if err := s.human.ClickElement(ctx, s.page, btn); err != nil {
		return nil, fmt.Errorf("failed to click message button: %w", err)
	}

	input, err := s.pages.WaitForElement(ctx, s.page, SelectorMessageInput, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("message input not found: %w", err)
	}

	if req.Subject != "" {
		if subject := elementOrNil(s.page, SelectorMessageSubject); subject != nil {
			if err := s.human.ClickElement(ctx, s.page, subject); err != nil {
				return nil, err
			}
			if err := s.human.Typing().Type(ctx, subject, req.Subject); err != nil {
				return nil, fmt.Errorf("failed to type subject: %w", err)
			}
		}
	}

	if err := s.human.ClickElement(ctx, s.page, input); err != nil {
		return nil, err
	}
	if err := s.human.Typing().Type(ctx, input, req.Message); err != nil {
		return nil, fmt.Errorf("failed to type message: %w", err)
	}
	if err := s.human.Timing().StepDelay(ctx); err != nil {
		return nil, err
	}

	send, err := s.pages.WaitForElement(ctx, s.page, SelectorSendMessageButton, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("send button not found: %w", err)
	}
	if err := s.human.ClickElement(ctx, s.page, send); err != nil {
		return nil, fmt.Errorf("failed to click send: %w", err)
	}

	if err := stealth.Sleep(ctx, time.Second); err != nil {
		return nil, err
	}
	if closeBtn := elementOrNil(s.page, SelectorCloseChat); closeBtn != nil {
		if err := s.human.ClickElement(ctx, s.page, closeBtn); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to close chat overlay")
		}
	}

	s.logger.Info().Str("profile", profile).Int("length", len(req.Message)).Msg("Message sent")
	return &workerpool.Result{Action: string(models.ActionMessageSent), Message: "message sent"}, nil
}
