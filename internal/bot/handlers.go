package bot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/avlasov/munipoints/internal/catalog"
	"github.com/avlasov/munipoints/internal/config"
	"github.com/avlasov/munipoints/internal/model"
)

func mainMenu(isAdmin bool) Keyboard {
	kb := Keyboard{
		{{Text: "👤 My cabinet", Data: "menu_cabinet"}, {Text: "📋 Tasks", Data: "menu_tasks"}},
		{{Text: "🏆 Rating", Data: "menu_rating"}, {Text: "🏙️ Change municipality", Data: "menu_setcity"}},
		{{Text: "📖 Rules", Data: "menu_rules"}, {Text: "🗓 Content plan", Data: "menu_plan"}},
	}
	if isAdmin {
		kb = append(kb, []Button{{Text: "🛠 Admin panel", Data: "menu_admin"}})
	}
	return kb
}

func adminMenu() Keyboard {
	return Keyboard{
		{{Text: "📢 Broadcast", Data: "admin_broadcast"}, {Text: "🚀 New broadcast task", Data: "admin_newcampaign"}},
		{{Text: "📋 New task", Data: "admin_newtask"}, {Text: "✅ Close task", Data: "admin_complete"}},
		{{Text: "🏅 Adjust points", Data: "admin_points"}, {Text: "🎖 Grant badge", Data: "admin_grant"}},
		{{Text: "🗑 Remove badge", Data: "admin_remove"}, {Text: "📈 Statistics", Data: "admin_stats"}},
		{{Text: "📄 Points report", Data: "admin_report_points"}, {Text: "📖 Edit rules", Data: "admin_rules"}},
		{{Text: "🗓 Edit content plan", Data: "admin_plan"}},
	}
}

// cityKeyboard lists the configured municipalities in stable order, one per
// row.
func cityKeyboard(tables *config.Tables) Keyboard {
	names := make([]string, 0, len(tables.Cities))
	for name := range tables.Cities {
		names = append(names, name)
	}
	sort.Strings(names)

	kb := make(Keyboard, 0, len(names))
	for _, name := range names {
		kb = append(kb, []Button{{
			Text: fmt.Sprintf("%s %s", tables.CityEmoji(name), name),
			Data: "city_" + name,
		}})
	}
	return kb
}

func cabinetText(u *model.User, achievements []model.Achievement, counters map[string]int, tables *config.Tables) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s", u.FirstName)
	if u.Username != "" {
		fmt.Fprintf(&b, " (@%s)", u.Username)
	}
	b.WriteString("\n")
	if u.HasCity() {
		fmt.Fprintf(&b, "%s %s\n", tables.CityEmoji(u.City), u.City)
	} else {
		b.WriteString("🏙️ Municipality not set\n")
	}
	fmt.Fprintf(&b, "🏅 Points: %d\n", u.Points)
	fmt.Fprintf(&b, "📅 Registered: %s\n", u.RegisteredAt.Format(catalog.DateLayout))

	if len(counters) > 0 {
		b.WriteString("\n📊 Activity:\n")
		kinds := make([]string, 0, len(counters))
		for k := range counters {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "  %s: %d\n", tables.CounterName(k), counters[k])
		}
	}

	if len(achievements) > 0 {
		b.WriteString("\n🏆 Achievements:\n")
		for _, a := range achievements {
			fmt.Fprintf(&b, "  %s %s\n", tables.AchievementEmoji(a.AchievementID), a.AchievementID)
		}
	}
	return b.String()
}

func ratingText(totals []model.CityTotal, tables *config.Tables) string {
	if len(totals) == 0 {
		return "🏆 No municipalities on the board yet."
	}
	var b strings.Builder
	b.WriteString("🏆 MUNICIPALITY RATING\n\n")
	medals := []string{"🥇", "🥈", "🥉"}
	for i, t := range totals {
		marker := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			marker = medals[i]
		}
		fmt.Fprintf(&b, "%s %s %s — %d points (%d members)\n",
			marker, tables.CityEmoji(t.City), t.City, t.Points, t.Members)
	}
	return b.String()
}

func taskListText(open []model.MunicipalTask, planned []catalog.Task) string {
	var b strings.Builder
	if len(open) == 0 && len(planned) == 0 {
		return "📋 No tasks for your municipality right now."
	}

	if len(open) > 0 {
		b.WriteString("📋 ASSIGNED TASKS\n\n")
		for _, t := range open {
			fmt.Fprintf(&b, "• %s", t.Name)
			if t.DueDate != nil {
				fmt.Fprintf(&b, " (due %s)", t.DueDate.Format(catalog.DateLayout))
			}
			if t.PointsReward > 0 {
				fmt.Fprintf(&b, " — %d pts", t.PointsReward)
			}
			b.WriteString("\n")
			if t.Description != "" {
				fmt.Fprintf(&b, "  %s\n", t.Description)
			}
		}
	}

	if len(planned) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("🗓 FROM THE CONTENT PLAN\n\n")
		for _, t := range planned {
			fmt.Fprintf(&b, "• %s", t.Title)
			if t.Date != "" {
				fmt.Fprintf(&b, " (%s)", t.Date)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// claimKeyboard offers unassigned catalog rows for pickup.
func claimKeyboard(unassigned []catalog.Task) Keyboard {
	var kb Keyboard
	for _, t := range unassigned {
		kb = append(kb, []Button{{
			Text: "✋ Take: " + truncate(t.Title, 40),
			Data: "claim_" + t.ID(),
		}})
	}
	return kb
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

const helpText = `Commands:
/start — main menu
/cabinet — your points and achievements
/tasks — tasks for your municipality
/rating — municipality leaderboard
/rules — working rules
/plan — content plan
/help — this message`
