package campaign

import "testing"

func TestParseLinksClassifiesAndDedupes(t *testing.T) {
	text := "Here you go:\n" +
		"https://vk.com/wall-1_100\n" +
		"https://vk.com/wall-1_100\n" +
		"https://vk.ru/other\n" +
		"https://t.me/channel/5\n" +
		"https://example.com/ignored"

	links := ParseLinks(text)

	if len(links.VK) != 2 {
		t.Errorf("vk links = %v, want 2 after dedupe", links.VK)
	}
	if len(links.Telegram) != 1 {
		t.Errorf("telegram links = %v, want 1", links.Telegram)
	}
	if len(links.All()) != 3 {
		t.Errorf("all links = %v, want 3", links.All())
	}
}

func TestRewardTiering(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"both platforms", "https://vk.com/a https://vk.com/b https://t.me/c", 2},
		{"single platform", "https://vk.com/a https://vk.com/b https://vk.com/c", 1},
		{"telegram only", "https://t.me/x", 1},
		{"nothing recognized", "https://example.com/a plain text", 0},
		{"no links at all", "I did the thing", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := ParseLinks(tt.text)
			if got := links.Reward(); got != tt.want {
				t.Errorf("reward = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEmptySubmission(t *testing.T) {
	if !ParseLinks("no links here").Empty() {
		t.Error("expected empty link set")
	}
	if ParseLinks("https://t.me/x").Empty() {
		t.Error("expected non-empty link set")
	}
}
