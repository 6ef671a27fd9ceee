package linkedin

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"

	"linkedin-outreach/internal/models"
	"linkedin-outreach/internal/workerpool"
)

// Profile page selectors for connection requests
const (
	SelectorConnectButton   = "button[aria-label*='Invite'][aria-label*='connect'], button[aria-label*='Connect']"
	SelectorMoreButton      = "button[aria-label='More actions']"
	SelectorDropdownConnect = "[data-control-name='connect'], div[aria-label*='connect']"
	SelectorAddNoteButton   = "button[aria-label='Add a note']"
	SelectorNoteTextarea    = "textarea[name='message'], textarea#custom-message"
	SelectorSendInvite      = "button[aria-label='Send now'], button[aria-label='Send invitation']"
	SelectorPendingButton   = "button[aria-label*='Pending']"
)

// MaxNoteLength is the longest note LinkedIn accepts on an invitation
const MaxNoteLength = 300

// TruncateNote cuts a note to MaxNoteLength characters, ending with an ellipsis when cut
func TruncateNote(note string) string {
	r := []rune(note)
	if len(r) <= MaxNoteLength {
		return note
	}
	return string(r[:MaxNoteLength-3]) + "..."
}

func (s *Session) sendConnectionRequest(ctx context.Context, profile string, req workerpool.Request) (*workerpool.Result, error) {
	if err := s.open(ctx, profile); err != nil {
		return nil, err
	}

	if s.isAlreadyConnected() {
		s.logger.Info().Str("profile", profile).Msg("Already connected or pending")
		return &workerpool.Result{Action: ResultAlreadyConnected, Message: "already connected or invitation pending"}, nil
	}

	if err := s.clickConnect(ctx); err != nil {
		return nil, err
	}
	if err := s.human.Timing().ShortDelay(ctx); err != nil {
		return nil, err
	}

	noted := false
	if req.Message != "" {
		if err := s.addNote(ctx, TruncateNote(req.Message)); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn().Err(err).Msg("Failed to add note, sending without note")
		} else {
			noted = true
		}
	}

	if err := s.clickFirst(ctx, SelectorSendInvite, "button", "Send"); err != nil {
		return nil, fmt.Errorf("failed to send invitation: %w", err)
	}

	s.logger.Info().Str("profile", profile).Bool("note", noted).Msg("Connection request sent")
	msg := "invitation sent"
	if noted {
		msg = "invitation sent with note"
	}
	return &workerpool.Result{Action: string(models.ActionInviteSent), Message: msg}, nil
}

// clickConnect tries the profile's Connect button, then the More dropdown
func (s *Session) clickConnect(ctx context.Context) error {
	if el, err := s.pages.WaitForElement(ctx, s.page, SelectorConnectButton, 5*time.Second); err == nil {
		return s.human.ClickElement(ctx, s.page, el)
	} else if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.Debug().Msg("Connect button not found directly, trying More dropdown")
	more, err := s.pages.WaitForElement(ctx, s.page, SelectorMoreButton, 3*time.Second)
	if err != nil {
		return fmt.Errorf("connect button not found: %w", err)
	}
	if err := s.human.ClickElement(ctx, s.page, more); err != nil {
		return err
	}
	return s.clickFirst(ctx, SelectorDropdownConnect, "div[role='button'], span", "Connect")
}

func (s *Session) addNote(ctx context.Context, note string) error {
	btn := elementOrNil(s.page, SelectorAddNoteButton)
	if btn == nil {
		return fmt.Errorf("add note button not shown")
	}
	if err := s.human.ClickElement(ctx, s.page, btn); err != nil {
		return err
	}

	textarea, err := s.pages.WaitForElement(ctx, s.page, SelectorNoteTextarea, 3*time.Second)
	if err != nil {
		return fmt.Errorf("note textarea not found: %w", err)
	}
	if err := s.human.ClickElement(ctx, s.page, textarea); err != nil {
		return err
	}
	return s.human.Typing().Type(ctx, textarea, note)
}

// clickFirst clicks the first match of selector, falling back to a textual match
func (s *Session) clickFirst(ctx context.Context, selector, textSelector, text string) error {
	el, err := s.pages.WaitForElement(ctx, s.page, selector, 5*time.Second)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var textErr error
		el, textErr = s.pages.FindElementByText(s.page, textSelector, text)
		if textErr != nil {
			return err
		}
	}
	return s.human.ClickElement(ctx, s.page, el)
}

// isAlreadyConnected reports a pending invitation, or a Message button without a Connect button
func (s *Session) isAlreadyConnected() bool {
	if s.pages.ElementExists(s.page, SelectorPendingButton) {
		return true
	}
	return s.pages.ElementExists(s.page, SelectorMessageButton) &&
		!s.pages.ElementExists(s.page, SelectorConnectButton)
}

// elementOrNil returns the first match without waiting
func elementOrNil(page *rod.Page, selector string) *rod.Element {
	has, el, err := page.Has(selector)
	if err != nil || !has {
		return nil
	}
	return el
}
