package bot

import (
	"strings"
	"testing"
	"time"

	"lxpbot/internal/lxp"
)

func TestPluralForms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n         int
		day, hour string
	}{
		{1, "день", "час"},
		{2, "дня", "часа"},
		{4, "дня", "часа"},
		{5, "дней", "часов"},
		{11, "дней", "часов"},
		{12, "дней", "часов"},
		{21, "день", "час"},
		{22, "дня", "часа"},
		{111, "дней", "часов"},
	}
	for _, tt := range tests {
		if got := DayWord(tt.n); got != tt.day {
			t.Fatalf("DayWord(%d) = %q, want %q", tt.n, got, tt.day)
		}
		if got := HourWord(tt.n); got != tt.hour {
			t.Fatalf("HourWord(%d) = %q, want %q", tt.n, got, tt.hour)
		}
	}
}

func TestTimeLeft(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Minute, "Осталось: 1 час"},
		{23*time.Hour + time.Minute, "Осталось: 1 день"},
		{23 * time.Hour, "Осталось: 23 часа"},
		{24 * time.Hour, "Осталось: 1 день"},
		{25 * time.Hour, "Осталось: 2 дня"},
		{120 * time.Hour, "Осталось: 5 дней"},
	}
	for _, tt := range tests {
		if got := TimeLeft(tt.d); got != tt.want {
			t.Fatalf("TimeLeft(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestLongDate(t *testing.T) {
	t.Parallel()
	got := LongDate(time.Date(2025, 3, 5, 9, 7, 0, 0, time.UTC))
	if got != "5 марта 2025 г. в 09:07" {
		t.Fatalf("LongDate = %q", got)
	}
}

func TestStripHTML(t *testing.T) {
	t.Parallel()
	if got := StripHTML("<p>Сдано&nbsp;<b>вовремя</b></p>\n\n ok"); got != "Сдано вовремя ok" {
		t.Fatalf("StripHTML = %q", got)
	}
}

func TestValidators(t *testing.T) {
	t.Parallel()
	if id, ok := ValidIdentifier("  A@B.RU "); !ok || id != "a@b.ru" {
		t.Fatalf("ValidIdentifier = %q %v", id, ok)
	}
	for _, bad := range []string{"a@b", "ab.ru", "a@.r"} {
		if _, ok := ValidIdentifier(bad); ok {
			t.Fatalf("accepted %q", bad)
		}
	}
	if _, ok := ValidSecret("abc"); ok {
		t.Fatalf("3-char secret accepted")
	}
	if _, ok := ValidSecret("abcd"); !ok {
		t.Fatalf("4-char secret rejected")
	}
}

func TestFormatDeadlines(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tasks := []lxp.Task{
		{Name: "Old", Topic: "x", Kind: lxp.KindTest, Deadline: now.Add(-time.Hour)},
		{Name: "Эссе <черновик>", Topic: "Этика", Kind: lxp.KindTask, Deadline: now.Add(5 * time.Hour), Link: "https://newlxp.ru/education/1/2"},
		{Name: "Квиз", Topic: "Логика", Kind: lxp.KindTest, Deadline: now.Add(49 * time.Hour)},
	}
	got, ok := FormatDeadlines(tasks, now, time.UTC)
	if !ok {
		t.Fatalf("expected upcoming tasks")
	}
	want := strings.Join([]string{
		"<b>Ваши приближающиеся сроки:</b>",
		"",
		"<b>Учебная практика</b>",
		"Эссе &lt;черновик&gt;",
		"Тема: Этика",
		"Осталось: 5 часов",
		"Срок: 1 марта 2025 г. в 15:00",
		`<a href="https://newlxp.ru/education/1/2">Перейти к списку задач</a>`,
		"-------------------------",
		"",
		"<b>Тест</b>",
		"Квиз",
		"Тема: Логика",
		"Осталось: 3 дня",
		"Срок: 3 марта 2025 г. в 11:00",
	}, "\n")
	if got != want {
		t.Fatalf("FormatDeadlines:\n%s\nwant:\n%s", got, want)
	}

	if _, ok := FormatDeadlines(tasks[:1], now, time.UTC); ok {
		t.Fatalf("past-only tasks should report nothing")
	}
}

func TestFormatNotificationsTruncatesBodies(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("я", maxNoteRunes+10)
	got := FormatNotifications([]lxp.Notification{
		{Title: "Задание <1>", Body: "<p>Проверено</p>", CreatedAt: time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC)},
		{Title: "Задание 2", Body: long},
	}, time.UTC)
	for _, sub := range []string{
		"📬 Уведомления о заданиях (2):",
		"1. <b>Задание &lt;1&gt;</b>\n   📅 03.02.2025\n   Проверено",
		"2. <b>Задание 2</b>\n   " + strings.Repeat("я", maxNoteRunes) + "…",
	} {
		if !strings.Contains(got, sub) {
			t.Fatalf("output missing %q:\n%s", sub, got)
		}
	}
}
