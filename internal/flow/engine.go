package flow

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/karabot/karabot/internal/models"
)

// Selection ids of the built-in flow states.
const (
	SelectionMainMenu    = "main_menu"
	SelectionBuy         = "buy"
	SelectionMoreInfo    = "more_info"
	SelectionTalkToHuman = "talk_to_human"
	SelectionDesiredMail = "desired_email"
	SelectionRandomMail  = "random_email"
	SelectionMeezan      = "meezan"
	SelectionSadaPay     = "sadapay"
	SelectionBinance     = "binance"
)

// DefaultFallbackText is used when no fallback is configured or scripted.
const DefaultFallbackText = "Sorry, I didn't understand that. Type 'menu' to see what I can do. 🤖"

// emailPattern matches an email address anywhere inside a text body.
var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// greetingTriggers route plain text straight to the full greeting flow.
var greetingTriggers = map[string]bool{
	"hi":    true,
	"hello": true,
	"menu":  true,
}

// Config carries the deployment-specific copy inputs of the engine.
type Config struct {
	// PromoImageURL, when non-empty, adds a promo image to the greeting and
	// more-info sequences.
	PromoImageURL     string
	PromoImageCaption string
	// InfoLinkURL is the target of the more-info link button. When empty the
	// link button is omitted entirely.
	InfoLinkURL string
	// FallbackText overrides the default fallback reply.
	FallbackText string
}

// Engine is the pure routing core: a function from trigger to outbound
// units. It holds only the read-only script table and config, so a single
// instance is safe for concurrent use.
type Engine struct {
	script Script
	cfg    Config
}

// NewEngine creates a flow engine over the given script table.
func NewEngine(script Script, cfg Config) *Engine {
	return &Engine{script: script, cfg: cfg}
}

// Greeting builds the full greeting sequence: welcome text, offer text,
// optional promo image, then the three main choices.
func (e *Engine) Greeting() []models.OutboundUnit {
	greeting := e.script.Greeting
	if greeting == "" {
		greeting = "👋 Hi there! I'm KARA, your account assistant."
	}

	units := []models.OutboundUnit{
		models.TextUnit(greeting),
		models.TextUnit("We set up premium accounts at the best rates. What would you like to do?"),
	}
	if e.cfg.PromoImageURL != "" {
		units = append(units, models.ImageUnit(e.cfg.PromoImageURL, e.cfg.PromoImageCaption))
	}
	units = append(units, models.ButtonsUnit("Choose an option to continue:",
		models.ButtonChoice{ID: SelectionBuy, Title: "Buy Now"},
		models.ButtonChoice{ID: SelectionMoreInfo, Title: "More Info"},
		models.ButtonChoice{ID: SelectionTalkToHuman, Title: "Talk to Human"},
	))
	return units
}

// Resolve maps a selection id to its response recipe. Built-in states are
// checked first; script submenu keys take precedence over category lookups;
// anything unmatched yields the fallback. Resolve never fails; the second
// return reports whether the recipe is a fallback reply.
func (e *Engine) Resolve(selectionID string) ([]models.OutboundUnit, bool) {
	switch selectionID {
	case SelectionMainMenu:
		return e.Greeting(), false
	case SelectionBuy:
		return []models.OutboundUnit{
			models.TextUnit("Great choice! 🎉 How would you like the account email to be set up?"),
			models.ButtonsUnit("Pick an email option:",
				models.ButtonChoice{ID: SelectionDesiredMail, Title: "Desired Email"},
				models.ButtonChoice{ID: SelectionRandomMail, Title: "Random Email"},
				models.ButtonChoice{ID: SelectionTalkToHuman, Title: "Talk to Human"},
			),
		}, false
	case SelectionMoreInfo:
		return e.moreInfo(), false
	case SelectionTalkToHuman:
		return []models.OutboundUnit{
			models.TextUnit("A member of our team will reach out to you shortly. 🙌"),
		}, false
	case SelectionDesiredMail:
		return []models.OutboundUnit{
			models.TextUnit("Please type the email address you would like us to use for your account. ✍️"),
		}, false
	case SelectionRandomMail:
		units := []models.OutboundUnit{
			models.TextUnit("No problem! We will generate a fresh email for your account. 🎲"),
		}
		return append(units, e.paymentOptions()...), false
	}

	if details, ok := paymentDetails[selectionID]; ok {
		return []models.OutboundUnit{models.TextUnit(details)}, false
	}

	if units, fell := e.resolveScripted(selectionID); units != nil {
		return units, fell
	}

	slog.Debug("Engine falling back on unknown selection", "selection_id", selectionID)
	return e.Fallback(), true
}

// RouteText routes a plain text message. An email address anywhere in the
// text wins over everything else, then slash commands, then the greeting
// trigger words, then the fallback. The second return reports whether the
// reply is a fallback (including unknown slash commands).
func (e *Engine) RouteText(text string) ([]models.OutboundUnit, bool) {
	if email := emailPattern.FindString(text); email != "" {
		return e.EmailSubmitted(email), false
	}
	if strings.HasPrefix(text, "/") {
		return e.command(text)
	}
	if greetingTriggers[strings.ToLower(strings.TrimSpace(text))] {
		return e.Greeting(), false
	}
	return e.Fallback(), true
}

// EmailSubmitted acknowledges a captured email address and moves the
// conversation to payment options.
func (e *Engine) EmailSubmitted(email string) []models.OutboundUnit {
	units := []models.OutboundUnit{
		models.TextUnit(fmt.Sprintf("Perfect! We will set up your account with %s. ✅", email)),
	}
	return append(units, e.paymentOptions()...)
}

// ImageReceived acknowledges an image upload. It is sent unconditionally,
// whatever happened to the download.
func (e *Engine) ImageReceived() []models.OutboundUnit {
	return []models.OutboundUnit{
		models.TextUnit("📸 Got it! Please wait while our team processes your image."),
	}
}

// Fallback returns the configured catch-all reply.
func (e *Engine) Fallback() []models.OutboundUnit {
	text := e.cfg.FallbackText
	if text == "" {
		text = e.script.Fallback
	}
	if text == "" {
		text = DefaultFallbackText
	}
	return []models.OutboundUnit{models.TextUnit(text)}
}

// paymentDetails holds the static payment instructions per method id.
var paymentDetails = map[string]string{
	SelectionMeezan:  "🏦 Meezan Bank\nAccount Title: KARA SERVICES\nAccount Number: 0101-0123456789\nSend a screenshot here once the transfer is done.",
	SelectionSadaPay: "📱 SadaPay\nAccount Title: KARA SERVICES\nNumber: 0300-1234567\nSend a screenshot here once the transfer is done.",
	SelectionBinance: "🪙 Binance\nPay ID: 123456789\nUSDT (TRC20) accepted.\nSend a screenshot here once the transfer is done.",
}

// paymentOptions is the shared payment prompt plus the three method buttons.
func (e *Engine) paymentOptions() []models.OutboundUnit {
	return []models.OutboundUnit{
		models.ButtonsUnit("Please choose a payment method to continue: 💳",
			models.ButtonChoice{ID: SelectionMeezan, Title: "Meezan Bank"},
			models.ButtonChoice{ID: SelectionSadaPay, Title: "SadaPay"},
			models.ButtonChoice{ID: SelectionBinance, Title: "Binance"},
		),
	}
}

// moreInfo builds the feature summary. The link button is omitted entirely
// when no info URL is configured; it is never degraded.
func (e *Engine) moreInfo() []models.OutboundUnit {
	units := []models.OutboundUnit{
		models.TextUnit("Here is what you get:\n• Full premium access\n• Instant account delivery\n• 7-day replacement warranty\n• Support whenever you need it"),
	}
	if e.cfg.PromoImageURL != "" {
		units = append(units, models.ImageUnit(e.cfg.PromoImageURL, e.cfg.PromoImageCaption))
	}
	if e.cfg.InfoLinkURL != "" {
		units = append(units, models.LinkButtonUnit("Want the full details?", "Learn More", e.cfg.InfoLinkURL))
	}
	return units
}

// command handles the fixed slash-command table. Unknown commands report
// as fallbacks.
func (e *Engine) command(text string) ([]models.OutboundUnit, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "/about", "/kara":
		return []models.OutboundUnit{models.TextUnit("It's KARA 🚀 — your premium account assistant.")}, false
	case "/help":
		return []models.OutboundUnit{models.TextUnit("Available commands:\n/about - About this bot\n/help - Show this help\n/menu - Show the main menu")}, false
	case "/menu":
		return e.Greeting(), false
	default:
		return []models.OutboundUnit{models.TextUnit("❌ Unknown command. Type /help")}, true
	}
}

// resolveScripted walks the script table. Returns nil units when the id is
// not known to the script so the caller can fall back; the bool marks ids
// that are known but resolve to a fallback reply.
func (e *Engine) resolveScripted(selectionID string) ([]models.OutboundUnit, bool) {
	// Submenu keys win over category membership.
	if menu, ok := e.script.Menus[selectionID]; ok {
		return []models.OutboundUnit{e.menuUnit(menu)}, false
	}

	for _, menu := range e.script.Menus {
		for _, opt := range menu.Options {
			if opt.ID != selectionID {
				continue
			}
			if opt.Action != nil {
				return []models.OutboundUnit{models.TextUnit(opt.Action.Body)}, false
			}
			if sub, ok := e.script.Menus[opt.ID]; ok {
				return []models.OutboundUnit{e.menuUnit(sub)}, false
			}
			return e.Fallback(), true
		}
	}

	if e.script.MainMenu != nil {
		for _, opt := range e.script.MainMenu.Options {
			if opt.ID == selectionID {
				if sub, ok := e.script.Menus[opt.ID]; ok {
					return []models.OutboundUnit{e.menuUnit(sub)}, false
				}
				return e.Fallback(), true
			}
		}
	}
	return nil, false
}

// menuUnit renders a script menu as a single-section list unit.
func (e *Engine) menuUnit(menu ScriptMenu) models.OutboundUnit {
	if len(menu.Options) == 0 {
		return models.TextUnit("Sorry, there are no options available in this category yet.")
	}
	rows := make([]models.ListRow, 0, len(menu.Options))
	for _, opt := range menu.Options {
		rows = append(rows, models.ListRow{ID: opt.ID, Title: opt.Title})
	}
	return models.ListUnit(menu.Title, menu.Body, rows)
}
