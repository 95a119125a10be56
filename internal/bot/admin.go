package bot

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avlasov/munipoints/internal/catalog"
	"github.com/avlasov/munipoints/internal/model"
	"github.com/avlasov/munipoints/internal/store"
)

func (r *Router) handleAdminCallback(adminID int64, data string, ack func(string)) {
	switch {
	case data == "admin_broadcast":
		ack("")
		r.dialogs.Begin(adminID, ActionBroadcast)
		r.transport.SendMessage(adminID, "📢 Who should receive it? Send a municipality name, or \"all\" for everyone.")

	case data == "admin_newcampaign":
		ack("")
		r.dialogs.Begin(adminID, ActionNewCampaign)
		r.transport.SendMessage(adminID, "🚀 Send the broadcast task name.")

	case data == "admin_newtask":
		ack("")
		r.dialogs.Begin(adminID, ActionNewTask)
		r.transport.SendMessage(adminID, "📋 Send the task name.")

	case data == "admin_complete":
		ack("")
		r.sendCompletionMenu(adminID)

	case strings.HasPrefix(data, "admin_complete_"):
		taskID := strings.TrimPrefix(data, "admin_complete_")
		ack("")
		d := r.dialogs.Begin(adminID, ActionCompleteTask)
		d.Fields["task_id"] = taskID
		r.transport.SendMessage(adminID, "✅ Send the closing reason.")

	case data == "admin_points":
		ack("")
		r.dialogs.Begin(adminID, ActionAdjustPoints)
		r.transport.SendMessage(adminID, "🏅 Send: user_id amount reason\nExample: 123456 -2 missed deadline")

	case data == "admin_grant":
		ack("")
		r.dialogs.Begin(adminID, ActionGrantBadge)
		r.transport.SendMessage(adminID, "🎖 Send: user_id badge_id reason")

	case data == "admin_remove":
		ack("")
		r.dialogs.Begin(adminID, ActionRemoveBadge)
		r.transport.SendMessage(adminID, "🗑 Send: user_id badge_id reason")

	case data == "admin_rules":
		ack("")
		r.dialogs.Begin(adminID, ActionSetRules)
		r.transport.SendMessage(adminID, "📖 Send the new rules text.")

	case data == "admin_plan":
		ack("")
		r.dialogs.Begin(adminID, ActionSetContentPlan)
		r.transport.SendMessage(adminID, "🗓 Send the new content plan text.")

	case data == "admin_stats":
		ack("")
		r.sendStats(adminID)

	case data == "admin_report_points":
		ack("")
		r.dialogs.Begin(adminID, ActionReportRange)
		r.transport.SendMessage(adminID, "📄 Send a date range DD.MM.YYYY-DD.MM.YYYY, or - for the full history.")

	case strings.HasPrefix(data, "admin_report_camp_"):
		ack("")
		r.sendCampaignReport(adminID, strings.TrimPrefix(data, "admin_report_camp_"))

	case data == "bcast_send":
		r.confirmBroadcast(adminID, ack)

	case data == "bcast_cancel":
		ack("Cancelled")
		r.dialogs.Clear(adminID)
		r.transport.SendMessage(adminID, "Broadcast cancelled.")

	default:
		ack("")
	}
}

func (r *Router) continueDialog(userID int64, d *Dialog, text string) {
	if !r.tables.IsAdmin(userID) {
		r.dialogs.Clear(userID)
		return
	}

	switch d.Action {
	case ActionBroadcast:
		r.continueBroadcast(userID, d, text)

	case ActionReportRange:
		r.dialogs.Clear(userID)
		r.sendPointsReport(userID, text)

	case ActionSetRules:
		r.saveSetting(userID, store.SettingRules, text, "📖 Rules updated.")

	case ActionSetContentPlan:
		r.saveSetting(userID, store.SettingContentPlan, text, "🗓 Content plan updated.")

	case ActionNewCampaign:
		r.continueNewCampaign(userID, d, text)

	case ActionNewTask:
		r.continueNewTask(userID, d, text)

	case ActionCompleteTask:
		r.continueCompleteTask(userID, d, text)

	case ActionAdjustPoints:
		r.dialogs.Clear(userID)
		r.adjustPoints(userID, text)

	case ActionGrantBadge:
		r.dialogs.Clear(userID)
		r.grantBadge(userID, text, false)

	case ActionRemoveBadge:
		r.dialogs.Clear(userID)
		r.grantBadge(userID, text, true)

	default:
		r.dialogs.Clear(userID)
	}
}

func (r *Router) saveSetting(adminID int64, key, value, confirmation string) {
	r.dialogs.Clear(adminID)
	if err := r.settings.Set(key, value); err != nil {
		r.log.Error("bot: save setting", "key", key, "err", err)
		r.transport.SendMessage(adminID, "Could not save, try again.")
		return
	}
	r.transport.SendMessage(adminID, confirmation)
}

func (r *Router) continueBroadcast(adminID int64, d *Dialog, text string) {
	switch d.Step {
	case 0:
		if !catalog.IsAllCities(text) && !r.tables.ValidCity(text) {
			r.transport.SendMessage(adminID, "I don't know that municipality. Send a configured name or \"all\".")
			return
		}
		d.Fields["target"] = text
		d.Step++
		r.transport.SendMessage(adminID, "Send the broadcast text. You will see a preview before it goes out.")
	case 1:
		d.Fields["text"] = text
		target := d.Fields["target"]
		if catalog.IsAllCities(target) {
			target = "all users"
		}
		r.transport.SendKeyboard(adminID,
			fmt.Sprintf("Preview:\n\n%s\n\nSend to %s?", text, target),
			Keyboard{{{Text: "✅ Send", Data: "bcast_send"}, {Text: "❌ Cancel", Data: "bcast_cancel"}}},
		)
	}
}

func (r *Router) confirmBroadcast(adminID int64, ack func(string)) {
	d, ok := r.dialogs.Active(adminID)
	if !ok || d.Action != ActionBroadcast || d.Fields["text"] == "" {
		ack("Nothing to send")
		return
	}
	text, target := d.Fields["text"], d.Fields["target"]
	r.dialogs.Clear(adminID)
	ack("")

	var recipients []model.User
	var err error
	if catalog.IsAllCities(target) {
		recipients, err = r.users.ListActive()
	} else {
		recipients, err = r.users.ListByCity(target)
	}
	if err != nil {
		r.log.Error("bot: list broadcast recipients", "target", target, "err", err)
		return
	}

	delivered, failed := 0, 0
	for _, u := range recipients {
		if err := r.transport.SendMessage(u.ID, text); err != nil {
			failed++
			continue
		}
		delivered++
	}
	r.transport.SendMessage(adminID, fmt.Sprintf("📢 Broadcast sent: %d delivered, %d failed.", delivered, failed))
}

func (r *Router) continueNewCampaign(adminID int64, d *Dialog, text string) {
	switch d.Step {
	case 0:
		d.Fields["name"] = text
		d.Step++
		r.transport.SendMessage(adminID, "Now send the task description.")
	case 1:
		r.dialogs.Clear(adminID)
		task, err := r.campaigns.Create(d.Fields["name"], text)
		if err != nil {
			r.log.Error("bot: create campaign", "err", err)
			r.transport.SendMessage(adminID, "Could not create the task.")
			return
		}

		announcement := fmt.Sprintf(
			"🚀 NEW BROADCAST TASK\n\n%s\n\n%s\n\nFirst submission from each municipality scores. Both platforms: 2 points, one: 1 point.",
			task.Name, task.Description,
		)
		kb := Keyboard{{{Text: "📨 Submit links", Data: fmt.Sprintf("raspush_start_%d", task.ID)}}}
		users, err := r.users.ListActive()
		if err != nil {
			r.log.Error("bot: list users for announcement", "err", err)
			r.transport.SendMessage(adminID, fmt.Sprintf("Task #%d created, but the announcement failed.", task.ID))
			return
		}
		delivered := 0
		for _, u := range users {
			if err := r.transport.SendKeyboard(u.ID, announcement, kb); err == nil {
				delivered++
			}
		}
		r.transport.SendKeyboard(adminID,
			fmt.Sprintf("🚀 Task #%d created and announced to %d users. Expires %s.",
				task.ID, delivered, task.ExpiresAt.Format(catalog.DateLayout)),
			Keyboard{{{Text: "📄 Completion report", Data: fmt.Sprintf("admin_report_camp_%d", task.ID)}}},
		)
	}
}

func (r *Router) continueNewTask(adminID int64, d *Dialog, text string) {
	switch d.Step {
	case 0:
		d.Fields["name"] = text
		d.Step++
		r.transport.SendMessage(adminID, "Send the description, or - for none.")
	case 1:
		if text != "-" {
			d.Fields["description"] = text
		}
		d.Step++
		r.transport.SendMessage(adminID, "Which municipality? Send its name, or \"all\" for everyone.")
	case 2:
		if !catalog.IsAllCities(text) && !r.tables.ValidCity(text) {
			r.transport.SendMessage(adminID, "I don't know that municipality. Send a configured name or \"all\".")
			return
		}
		d.Fields["city"] = text
		d.Step++
		r.transport.SendMessage(adminID, "Due date (DD.MM.YYYY), or - for none.")
	case 3:
		if text != "-" {
			normalized := catalog.NormalizeDate(text)
			if _, err := time.Parse(catalog.DateLayout, normalized); err != nil {
				r.transport.SendMessage(adminID, "I could not read that date. Use DD.MM.YYYY, or - for none.")
				return
			}
			d.Fields["due"] = normalized
		}
		d.Step++
		r.transport.SendMessage(adminID, "Points reward on completion (0 for none).")
	case 4:
		reward, err := strconv.Atoi(text)
		if err != nil || reward < 0 {
			r.transport.SendMessage(adminID, "Send a non-negative number.")
			return
		}
		r.dialogs.Clear(adminID)

		var due *time.Time
		if s := d.Fields["due"]; s != "" {
			t, _ := time.Parse(catalog.DateLayout, s)
			due = &t
		}
		created, err := r.tasks.Assign(d.Fields["name"], d.Fields["description"], d.Fields["city"], adminID, due, reward)
		if err != nil {
			r.log.Error("bot: assign task", "err", err)
			r.transport.SendMessage(adminID, "Could not create the task.")
			return
		}
		r.transport.SendMessage(adminID, fmt.Sprintf("📋 Created %d task(s) and notified the assignees.", len(created)))
	}
}

func (r *Router) sendCompletionMenu(adminID int64) {
	open, err := r.tasks.Open()
	if err != nil {
		r.log.Error("bot: list open tasks", "err", err)
		return
	}
	if len(open) == 0 {
		r.transport.SendMessage(adminID, "No open tasks.")
		return
	}
	var kb Keyboard
	for _, t := range open {
		kb = append(kb, []Button{{
			Text: fmt.Sprintf("%s — %s", truncate(t.Name, 30), t.AssignedCity),
			Data: fmt.Sprintf("admin_complete_%d", t.ID),
		}})
	}
	r.transport.SendKeyboard(adminID, "Which task is done?", kb)
}

func (r *Router) continueCompleteTask(adminID int64, d *Dialog, text string) {
	switch d.Step {
	case 0:
		d.Fields["reason"] = text
		d.Step++
		r.transport.SendMessage(adminID, "Points for every member of the municipality (0 for none).")
	case 1:
		amount, err := strconv.Atoi(text)
		if err != nil {
			r.transport.SendMessage(adminID, "Send a number.")
			return
		}
		r.dialogs.Clear(adminID)

		taskID, err := strconv.ParseInt(d.Fields["task_id"], 10, 64)
		if err != nil {
			r.transport.SendMessage(adminID, "Broken task reference, start over.")
			return
		}
		task, rewarded, err := r.tasks.Complete(taskID, adminID, d.Fields["reason"], amount)
		if err != nil {
			r.log.Error("bot: complete task", "task", taskID, "err", err)
			r.transport.SendMessage(adminID, "Could not close the task. It may already be closed.")
			return
		}
		r.transport.SendMessage(adminID,
			fmt.Sprintf("✅ %s closed. %d member(s) of %s rewarded %d points each.",
				task.Name, rewarded, task.AssignedCity, amount))
	}
}

// adjustPoints parses "user_id amount reason", clamping debits so the
// balance never goes negative.
func (r *Router) adjustPoints(adminID int64, text string) {
	parts := strings.Fields(text)
	if len(parts) < 3 {
		r.transport.SendMessage(adminID, "Format: user_id amount reason")
		return
	}
	userID, err1 := strconv.ParseInt(parts[0], 10, 64)
	amount, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		r.transport.SendMessage(adminID, "Format: user_id amount reason")
		return
	}
	reason := strings.Join(parts[2:], " ")

	user, err := r.users.GetByID(userID)
	if err != nil || user == nil {
		r.transport.SendMessage(adminID, "No such user.")
		return
	}
	if amount < 0 && user.Points+amount < 0 {
		amount = -user.Points
	}

	balance, err := r.users.AdjustPoints(userID, amount, reason, &adminID)
	if err != nil {
		r.log.Error("bot: adjust points", "user", userID, "err", err)
		r.transport.SendMessage(adminID, "Could not adjust points.")
		return
	}
	r.transport.SendMessage(adminID, fmt.Sprintf("🏅 %s now has %d points.", user.FirstName, balance))
	sign := "+"
	if amount < 0 {
		sign = ""
	}
	r.transport.SendMessage(userID, fmt.Sprintf("🏅 Points adjusted: %s%d (%s). Balance: %d.", sign, amount, reason, balance))
}

func (r *Router) grantBadge(adminID int64, text string, remove bool) {
	parts := strings.Fields(text)
	if len(parts) < 3 {
		r.transport.SendMessage(adminID, "Format: user_id badge_id reason")
		return
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		r.transport.SendMessage(adminID, "Format: user_id badge_id reason")
		return
	}
	badgeID := parts[1]
	reason := strings.Join(parts[2:], " ")

	if remove {
		if err := r.badges.Remove(userID, badgeID, adminID, reason); err != nil {
			r.transport.SendMessage(adminID, fmt.Sprintf("Could not remove: %v", err))
			return
		}
		r.transport.SendMessage(adminID, fmt.Sprintf("🗑 %s removed from %d. Earned points stay.", badgeID, userID))
		return
	}
	if err := r.badges.Grant(userID, badgeID, adminID, reason); err != nil {
		r.transport.SendMessage(adminID, fmt.Sprintf("Could not grant: %v", err))
		return
	}
	r.transport.SendMessage(adminID, fmt.Sprintf("🎖 %s granted to %d.", badgeID, userID))
}

func (r *Router) sendStats(adminID int64) {
	users, err := r.users.ListActive()
	if err != nil {
		r.log.Error("bot: stats", "err", err)
		return
	}
	open, err := r.tasks.Open()
	if err != nil {
		r.log.Error("bot: stats", "err", err)
		return
	}
	totals, err := r.users.CityTotals()
	if err != nil {
		r.log.Error("bot: stats", "err", err)
		return
	}

	withCity := 0
	for _, u := range users {
		if u.HasCity() {
			withCity++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📈 STATISTICS\n\n👥 Users: %d (%d with a municipality)\n🏙️ Municipalities on the board: %d\n📋 Open tasks: %d",
		len(users), withCity, len(totals), len(open))

	if counterTotals, err := r.counters.SumCounters(); err == nil && len(counterTotals) > 0 {
		b.WriteString("\n\n📊 Activity totals:")
		kinds := make([]string, 0, len(counterTotals))
		for k := range counterTotals {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "\n  %s: %d", r.tables.CounterName(k), counterTotals[k])
		}
	}
	r.transport.SendMessage(adminID, b.String())
}

// sendPointsReport builds the export, optionally bounded by a
// "DD.MM.YYYY-DD.MM.YYYY" range ("-" means everything).
func (r *Router) sendPointsReport(adminID int64, rangeText string) {
	var start, end *time.Time
	if rangeText != "-" {
		parts := strings.SplitN(rangeText, "-", 2)
		if len(parts) != 2 {
			r.transport.SendMessage(adminID, "Format: DD.MM.YYYY-DD.MM.YYYY, or - for the full history.")
			return
		}
		from, err1 := time.Parse(catalog.DateLayout, strings.TrimSpace(parts[0]))
		to, err2 := time.Parse(catalog.DateLayout, strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil {
			r.transport.SendMessage(adminID, "I could not read those dates. Use DD.MM.YYYY-DD.MM.YYYY.")
			return
		}
		// The end date is inclusive.
		to = to.AddDate(0, 0, 1)
		start, end = &from, &to
	}

	path, err := r.reports.PointsHistory(start, end)
	if err != nil {
		r.log.Error("bot: points report", "err", err)
		r.transport.SendMessage(adminID, "Could not build the report.")
		return
	}
	defer os.Remove(path)
	if err := r.transport.SendDocument(adminID, path, "Points history"); err != nil {
		r.log.Error("bot: send report", "err", err)
	}
}

func (r *Router) sendCampaignReport(adminID int64, idStr string) {
	taskID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}
	path, err := r.reports.CampaignCompletions(taskID)
	if err != nil {
		r.log.Error("bot: campaign report", "task", taskID, "err", err)
		r.transport.SendMessage(adminID, "Could not build the report. The task may have expired.")
		return
	}
	defer os.Remove(path)
	if err := r.transport.SendDocument(adminID, path, fmt.Sprintf("Completions for task #%d", taskID)); err != nil {
		r.log.Error("bot: send report", "err", err)
	}
}
