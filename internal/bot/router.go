package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/avlasov/munipoints/internal/achievement"
	"github.com/avlasov/munipoints/internal/campaign"
	"github.com/avlasov/munipoints/internal/catalog"
	"github.com/avlasov/munipoints/internal/config"
	"github.com/avlasov/munipoints/internal/report"
	"github.com/avlasov/munipoints/internal/store"
	"github.com/avlasov/munipoints/internal/tasks"
)

// dialogTTL bounds how long an abandoned admin prompt captures messages.
const dialogTTL = 30 * time.Minute

// Transport is the outbound surface the router needs; *Client implements it.
type Transport interface {
	SendMessage(userID int64, text string) error
	SendKeyboard(userID int64, text string, kb Keyboard) error
	SendSticker(userID int64, stickerID string) error
	SendDocument(userID int64, path, caption string) error
	AnswerCallback(callbackID, text string) error
}

// Router dispatches incoming updates to commands, button callbacks, and
// in-progress dialogs.
type Router struct {
	transport Transport
	users     *store.UserStore
	counters  *store.AchievementStore
	settings  *store.SettingsStore
	tasks     *tasks.Engine
	campaigns *campaign.Engine
	badges    *achievement.Engine
	catalog   *catalog.Store
	reports   *report.Generator
	tables    *config.Tables
	dialogs   *DialogStore
	log       *slog.Logger
}

func NewRouter(
	transport Transport,
	users *store.UserStore,
	counters *store.AchievementStore,
	settings *store.SettingsStore,
	taskEngine *tasks.Engine,
	campaignEngine *campaign.Engine,
	badgeEngine *achievement.Engine,
	cat *catalog.Store,
	reports *report.Generator,
	tables *config.Tables,
	log *slog.Logger,
) *Router {
	return &Router{
		transport: transport,
		users:     users,
		counters:  counters,
		settings:  settings,
		tasks:     taskEngine,
		campaigns: campaignEngine,
		badges:    badgeEngine,
		catalog:   cat,
		reports:   reports,
		tables:    tables,
		dialogs:   NewDialogStore(dialogTTL),
		log:       log,
	}
}

// HandleUpdate processes one update. Errors are logged, never returned: a
// bad update must not stall the poll loop.
func (r *Router) HandleUpdate(u Update) {
	switch {
	case u.CallbackQuery != nil:
		r.handleCallback(u.CallbackQuery)
	case u.Message != nil && u.Message.From != nil:
		r.handleMessage(u.Message)
	}
}

func (r *Router) handleMessage(m *Message) {
	from := m.From
	user, err := r.users.GetOrCreate(from.ID, from.Username, from.FirstName, from.LastName)
	if err != nil {
		r.log.Error("bot: get or create user", "user", from.ID, "err", err)
		return
	}
	if user.Banned {
		return
	}
	if err := r.users.Touch(from.ID); err != nil {
		r.log.Error("bot: touch user", "user", from.ID, "err", err)
	}

	text := strings.TrimSpace(m.Text)
	if strings.HasPrefix(text, "/") {
		r.handleCommand(from.ID, text)
		return
	}

	// A user mid-submission owns the next free-text message.
	if _, ok := r.campaigns.Attempts().Active(from.ID); ok {
		r.handleSubmission(from.ID, text)
		return
	}
	if d, ok := r.dialogs.Active(from.ID); ok {
		r.continueDialog(from.ID, d, text)
		return
	}

	r.transport.SendMessage(from.ID, "Use the menu below or /help for commands.")
	r.sendMainMenu(from.ID)
}

func (r *Router) handleCommand(userID int64, text string) {
	cmd := strings.Fields(text)[0]
	// Strip the @botname suffix used in group chats.
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start":
		user, err := r.users.GetByID(userID)
		if err != nil || user == nil {
			return
		}
		r.transport.SendMessage(userID, fmt.Sprintf("👋 Hello, %s! This bot tracks your team's tasks and points.", user.FirstName))
		if !user.HasCity() {
			r.transport.SendKeyboard(userID, "First, pick your municipality:", cityKeyboard(r.tables))
			return
		}
		r.sendMainMenu(userID)
	case "/help":
		r.transport.SendMessage(userID, helpText)
	case "/cabinet":
		r.sendCabinet(userID)
	case "/tasks":
		r.sendTasks(userID)
	case "/rating":
		r.sendRating(userID)
	case "/rules":
		r.sendSetting(userID, store.SettingRules, "📖 Rules are not set yet.")
	case "/plan":
		r.sendSetting(userID, store.SettingContentPlan, "🗓 The content plan is not set yet.")
	case "/admin":
		if !r.tables.IsAdmin(userID) {
			r.transport.SendMessage(userID, "This command is for administrators.")
			return
		}
		r.transport.SendKeyboard(userID, "🛠 Admin panel", adminMenu())
	default:
		r.transport.SendMessage(userID, "Unknown command. /help lists what I understand.")
	}
}

func (r *Router) handleCallback(q *CallbackQuery) {
	userID := q.From.ID
	data := q.Data
	ack := func(toast string) { r.transport.AnswerCallback(q.ID, toast) }

	switch {
	case strings.HasPrefix(data, "city_"):
		city := strings.TrimPrefix(data, "city_")
		if !r.tables.ValidCity(city) {
			ack("Unknown municipality")
			return
		}
		if err := r.users.SetCity(userID, city); err != nil {
			r.log.Error("bot: set city", "user", userID, "err", err)
			ack("Something went wrong")
			return
		}
		ack("")
		r.transport.SendMessage(userID, fmt.Sprintf("%s Your municipality is now %s.", r.tables.CityEmoji(city), city))
		r.sendMainMenu(userID)

	case data == "menu_cabinet":
		ack("")
		r.sendCabinet(userID)
	case data == "menu_tasks":
		ack("")
		r.sendTasks(userID)
	case data == "menu_rating":
		ack("")
		r.sendRating(userID)
	case data == "menu_setcity":
		ack("")
		r.transport.SendKeyboard(userID, "Pick your municipality:", cityKeyboard(r.tables))
	case data == "menu_rules":
		ack("")
		r.sendSetting(userID, store.SettingRules, "📖 Rules are not set yet.")
	case data == "menu_plan":
		ack("")
		r.sendSetting(userID, store.SettingContentPlan, "🗓 The content plan is not set yet.")
	case data == "menu_admin":
		if !r.tables.IsAdmin(userID) {
			ack("Administrators only")
			return
		}
		ack("")
		r.transport.SendKeyboard(userID, "🛠 Admin panel", adminMenu())

	case strings.HasPrefix(data, "raspush_start_"):
		r.startCampaignAttempt(userID, strings.TrimPrefix(data, "raspush_start_"), ack)

	case strings.HasPrefix(data, "claim_"):
		r.claimCatalogTask(userID, strings.TrimPrefix(data, "claim_"), ack)

	default:
		if r.tables.IsAdmin(userID) {
			r.handleAdminCallback(userID, data, ack)
			return
		}
		ack("")
	}
}

func (r *Router) startCampaignAttempt(userID int64, idStr string, ack func(string)) {
	taskID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		ack("Broken button")
		return
	}
	switch err := r.campaigns.Start(userID, taskID); {
	case err == nil:
		ack("")
		r.transport.SendMessage(userID, "🔗 Send your publication links (VK and Telegram) in one message.\n\nBoth platforms: 2 points. One platform: 1 point.")
	case errors.Is(err, campaign.ErrNoCity):
		ack("")
		r.transport.SendKeyboard(userID, "Pick your municipality first:", cityKeyboard(r.tables))
	case errors.Is(err, store.ErrAlreadyCompleted):
		ack("Your municipality already completed this task")
	case errors.Is(err, store.ErrNotFound):
		ack("This task has expired")
	default:
		r.log.Error("bot: start campaign", "user", userID, "task", taskID, "err", err)
		ack("Something went wrong")
	}
}

func (r *Router) handleSubmission(userID int64, text string) {
	res, err := r.campaigns.Submit(userID, text)
	switch {
	case err == nil:
		msg := fmt.Sprintf("✅ Submission accepted!\n\n🔗 Links: %d\n🏅 +%d points (balance: %d)",
			len(res.Links.All()), res.Points, res.NewBalance)
		if !res.Awarded {
			msg = "✅ Submission recorded, but the points could not be credited. The administrators have been notified."
		}
		r.transport.SendMessage(userID, msg)
	case errors.Is(err, campaign.ErrNoRecognizedLinks):
		r.transport.SendMessage(userID, "I could not find VK or Telegram links in that message. Send the publication links, or /start to cancel.")
	case errors.Is(err, store.ErrAlreadyCompleted):
		r.transport.SendMessage(userID, "Your municipality already completed this task — a teammate got there first.")
	case errors.Is(err, campaign.ErrNoCity):
		r.transport.SendKeyboard(userID, "Pick your municipality first:", cityKeyboard(r.tables))
	default:
		r.log.Error("bot: submit campaign", "user", userID, "err", err)
		r.transport.SendMessage(userID, "Something went wrong, try again.")
	}
}

func (r *Router) claimCatalogTask(userID int64, claimID string, ack func(string)) {
	user, err := r.users.GetByID(userID)
	if err != nil || user == nil || !user.HasCity() {
		ack("Pick your municipality first")
		return
	}
	task, err := r.catalog.Claim(claimID, user.City)
	if errors.Is(err, catalog.ErrNotFound) {
		ack("This task is gone from the plan")
		return
	}
	if err != nil {
		r.log.Error("bot: claim task", "user", userID, "err", err)
		ack("Something went wrong")
		return
	}
	ack("")
	r.transport.SendMessage(userID, fmt.Sprintf("✋ %s is now responsible for: %s", user.City, task.Title))
}

func (r *Router) sendMainMenu(userID int64) {
	r.transport.SendKeyboard(userID, "Main menu:", mainMenu(r.tables.IsAdmin(userID)))
}

func (r *Router) sendCabinet(userID int64) {
	user, err := r.users.GetByID(userID)
	if err != nil || user == nil {
		return
	}
	achievements, err := r.counters.ListByUser(userID)
	if err != nil {
		r.log.Error("bot: list achievements", "user", userID, "err", err)
	}
	counters, err := r.counters.Counters(userID)
	if err != nil {
		r.log.Error("bot: list counters", "user", userID, "err", err)
	}
	r.transport.SendMessage(userID, cabinetText(user, achievements, counters, r.tables))
}

func (r *Router) sendRating(userID int64) {
	totals, err := r.users.CityTotals()
	if err != nil {
		r.log.Error("bot: city totals", "err", err)
		return
	}
	r.transport.SendMessage(userID, ratingText(totals, r.tables))
}

func (r *Router) sendTasks(userID int64) {
	user, err := r.users.GetByID(userID)
	if err != nil || user == nil {
		return
	}
	if !user.HasCity() {
		r.transport.SendKeyboard(userID, "Pick your municipality first:", cityKeyboard(r.tables))
		return
	}

	open, err := r.tasks.OpenForCity(user.City)
	if err != nil {
		r.log.Error("bot: list open tasks", "city", user.City, "err", err)
	}

	all, err := r.catalog.LoadAll()
	if err != nil {
		r.log.Error("bot: load catalog", "err", err)
	}
	planned := catalog.FilterByCity(all, user.City)

	r.transport.SendMessage(userID, taskListText(open, planned))

	var unassigned []catalog.Task
	for _, t := range all {
		if t.Responsible == "" {
			unassigned = append(unassigned, t)
		}
	}
	if len(unassigned) > 0 {
		r.transport.SendKeyboard(userID, "Unassigned tasks up for grabs:", claimKeyboard(unassigned))
	}
}

func (r *Router) sendSetting(userID int64, key, fallback string) {
	value, err := r.settings.Get(key)
	if err != nil {
		r.log.Error("bot: get setting", "key", key, "err", err)
		return
	}
	if value == "" {
		value = fallback
	}
	r.transport.SendMessage(userID, value)
}
