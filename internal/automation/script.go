// internal/automation/script.go
// Package automation drives the chat application through one send request:
// acquire the conversation search control, filter and select the recipient,
// verify the open conversation, acquire the composer and send the payload. Every
// control is found through a fallback chain of independent locators so that a
// markup change in the host application only disables the candidates it touches.
package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/sendlater/internal/browser/dom"
	"github.com/xkilldash9x/sendlater/internal/browser/page"
	"go.uber.org/zap"
)

// VerifyMode controls the conversation verification step.
type VerifyMode string

const (
	// VerifyBestEffort fails on a readable mismatch and proceeds when the header is unreadable.
	VerifyBestEffort VerifyMode = "best_effort"
	// VerifyStrict also fails when the header cannot be read.
	VerifyStrict VerifyMode = "strict"
	// VerifyOff skips verification.
	VerifyOff VerifyMode = "off"
)

// ParseVerifyMode validates a configured mode.
func ParseVerifyMode(s string) (VerifyMode, error) {
	switch m := VerifyMode(strings.ToLower(strings.TrimSpace(s))); m {
	case VerifyBestEffort, VerifyStrict, VerifyOff:
		return m, nil
	case "":
		return VerifyBestEffort, nil
	default:
		return "", fmt.Errorf("unknown verify mode %q", s)
	}
}

// Settings holds the per-step budgets and settle delays.
type Settings struct {
	SearchTimeout   time.Duration
	ContactTimeout  time.Duration
	HeaderTimeout   time.Duration
	ComposerTimeout time.Duration
	SendTimeout     time.Duration
	SelectSettle    time.Duration
	SendSettle      time.Duration
	Verify          VerifyMode
}

// DefaultSettings returns the budgets tuned against the live application.
func DefaultSettings() Settings {
	return Settings{
		SearchTimeout:   2 * time.Second,
		ContactTimeout:  5 * time.Second,
		HeaderTimeout:   time.Second,
		ComposerTimeout: 3 * time.Second,
		SendTimeout:     3 * time.Second,
		SelectSettle:    1500 * time.Millisecond,
		SendSettle:      800 * time.Millisecond,
		Verify:          VerifyBestEffort,
	}
}

// Script runs send requests against one page. Steps run strictly in order and
// the first failure ends the run.
type Script struct {
	page     *page.Page
	logger   *zap.Logger
	settings Settings
}

// Option configures a Script.
type Option func(*Script)

// WithSettings overrides the default budgets.
func WithSettings(s Settings) Option {
	return func(sc *Script) { sc.settings = s }
}

// New creates a Script bound to p.
func New(p *page.Page, logger *zap.Logger, opts ...Option) *Script {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Script{page: p, logger: logger.Named("automation"), settings: DefaultSettings()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers payload to recipient. A returned *Failure names the step that
// could not complete.
func (s *Script) Send(ctx context.Context, recipient, payload string) error {
	log := s.logger.With(zap.String("recipient", recipient))
	log.Info("Starting send.")

	// 1. AcquireConversation
	search, err := s.searchChain().Acquire(ctx, s.page, log)
	if err != nil {
		return err
	}

	// 2. FilterAndSelect
	if err := search.Fill(ctx, recipient, dom.FillOptions{Timeout: s.settings.SearchTimeout}); err != nil {
		return s.fail(ctx, ErrSearchControlNotFound, "filter", err)
	}
	contact, err := s.contactChain(recipient).Acquire(ctx, s.page, log)
	if err != nil {
		return err
	}
	if err := contact.Click(ctx, dom.ClickOptions{Timeout: s.settings.ContactTimeout}); err != nil {
		return s.fail(ctx, ErrContactNotFound, "select", err)
	}

	// 3. VerifyContext
	if err := s.verify(ctx, recipient, log); err != nil {
		return err
	}

	// 4. AcquireComposer
	composer, err := s.composerChain().Acquire(ctx, s.page, log)
	if err != nil {
		return err
	}

	// 5. ComposeAndSend
	if err := composer.Fill(ctx, payload, dom.FillOptions{Timeout: s.settings.ComposerTimeout}); err != nil {
		return s.fail(ctx, ErrComposerNotFound, "compose", err)
	}
	if err := dom.Sleep(ctx, s.settings.SendSettle); err != nil {
		return err
	}
	send, err := s.sendChain().Acquire(ctx, s.page, log)
	if err != nil {
		return err
	}
	if err := send.Click(ctx, dom.ClickOptions{Timeout: s.settings.SendTimeout}); err != nil {
		return s.fail(ctx, ErrSendControlNotFound, "send", err)
	}

	log.Info("Message sent.")
	return nil
}

func (s *Script) fail(ctx context.Context, kind error, step string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &Failure{Kind: kind, Step: step, Err: err}
}

func (s *Script) verify(ctx context.Context, recipient string, log *zap.Logger) error {
	if s.settings.Verify == VerifyOff {
		return nil
	}
	if err := dom.Sleep(ctx, s.settings.SelectSettle); err != nil {
		return err
	}
	header, err := s.headerChain().Acquire(ctx, s.page, log)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.settings.Verify == VerifyStrict {
			return &Failure{Kind: ErrWrongConversation, Step: "verify", Err: err}
		}
		log.Warn("Conversation header unreadable, proceeding without verification.")
		return nil
	}
	n, ok := header.Resolve(ctx)
	if !ok {
		log.Warn("Conversation header vanished before it could be read.")
		return nil
	}
	desc, err := n.Describe(ctx)
	if err != nil {
		log.Warn("Conversation header could not be read.", zap.Error(err))
		return nil
	}
	if !strings.Contains(strings.ToLower(desc.Text), strings.ToLower(recipient)) {
		return &Failure{
			Kind: ErrWrongConversation,
			Step: "verify",
			Err:  fmt.Errorf("active conversation is %q", desc.Text),
		}
	}
	return nil
}

func (s *Script) searchChain() Chain {
	return Chain{
		Name:    "search",
		Kind:    ErrSearchControlNotFound,
		Timeout: s.settings.SearchTimeout,
		Candidates: []Candidate{
			{Name: "role-textbox-label", Build: func(p *page.Page) *dom.Locator {
				return p.ByRole("textbox", dom.Text("Search input textbox"))
			}},
			{Name: "role-textbox-search", Build: func(p *page.Page) *dom.Locator {
				return p.ByRole("textbox", dom.MustPattern("search"))
			}},
			{Name: "placeholder", Build: func(p *page.Page) *dom.Locator {
				return p.ByPlaceholder("Search")
			}},
			{Name: "testid-chat-list-search", Build: func(p *page.Page) *dom.Locator {
				return p.Raw(`div[data-testid="chat-list-search"] div[contenteditable="true"]`)
			}},
			{Name: "side-contenteditable", Build: func(p *page.Page) *dom.Locator {
				return p.Raw(`#side div[contenteditable="true"]`)
			}},
		},
	}
}

func (s *Script) contactChain(recipient string) Chain {
	return Chain{
		Name:    "contact",
		Kind:    ErrContactNotFound,
		Timeout: s.settings.ContactTimeout,
		Candidates: []Candidate{
			{Name: "role-listitem", Build: func(p *page.Page) *dom.Locator {
				return p.ByRole("listitem", dom.Text(recipient))
			}},
			{Name: "title", Build: func(p *page.Page) *dom.Locator {
				return p.Within(p.Raw("#pane-side")).ByAttribute("title", recipient)
			}},
		},
	}
}

func (s *Script) headerChain() Chain {
	return Chain{
		Name:    "header",
		Kind:    ErrWrongConversation,
		Timeout: s.settings.HeaderTimeout,
		Candidates: []Candidate{
			{Name: "header-span", Build: func(p *page.Page) *dom.Locator {
				return p.Raw(`#main header span[dir="auto"]`)
			}},
			{Name: "header-div", Build: func(p *page.Page) *dom.Locator {
				return p.Raw(`#main > header > div > div > div`)
			}},
		},
	}
}

func (s *Script) composerChain() Chain {
	within := func(p *page.Page) *page.Page { return p.Within(p.Raw("#main")) }
	return Chain{
		Name:    "composer",
		Kind:    ErrComposerNotFound,
		Timeout: s.settings.ComposerTimeout,
		Candidates: []Candidate{
			{Name: "footer-contenteditable", Build: func(p *page.Page) *dom.Locator {
				return within(p).Raw(`footer div[contenteditable="true"]`)
			}},
			{Name: "testid-compose-box", Build: func(p *page.Page) *dom.Locator {
				return within(p).ByTestID("conversation-compose-box-input")
			}},
			{Name: "role-textbox", Build: func(p *page.Page) *dom.Locator {
				return within(p).ByRole("textbox", nil)
			}},
		},
	}
}

func (s *Script) sendChain() Chain {
	return Chain{
		Name:    "send",
		Kind:    ErrSendControlNotFound,
		Timeout: s.settings.SendTimeout,
		Candidates: []Candidate{
			{Name: "testid-send", Build: func(p *page.Page) *dom.Locator {
				return p.ByTestID("send")
			}},
			{Name: "icon-send", Build: func(p *page.Page) *dom.Locator {
				return p.Raw(`[data-icon="send"]`)
			}},
			{Name: "role-button-send", Build: func(p *page.Page) *dom.Locator {
				return p.ByRole("button", dom.MustPattern("send"))
			}},
		},
	}
}
