package bot

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"lxpbot/internal/lxp"
	"lxpbot/pkg/tgui"
)

// DayWord returns the Russian plural form of "day" for n.
func DayWord(n int) string { return plural(n, "день", "дня", "дней") }

// HourWord returns the Russian plural form of "hour" for n.
func HourWord(n int) string { return plural(n, "час", "часа", "часов") }

func plural(n int, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	switch {
	case n%10 == 1 && n%100 != 11:
		return one
	case n%10 >= 2 && n%10 <= 4 && (n%100 < 12 || n%100 > 14):
		return few
	default:
		return many
	}
}

// TimeLeft renders the remaining time: whole hours (rounded up) under a
// day, otherwise days rounded up from those hours.
func TimeLeft(d time.Duration) string {
	hours := int(math.Ceil(d.Hours()))
	if hours < 24 {
		return fmt.Sprintf("Осталось: %d %s", hours, HourWord(hours))
	}
	days := int(math.Ceil(float64(hours) / 24))
	return fmt.Sprintf("Осталось: %d %s", days, DayWord(days))
}

var monthsGenitive = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// LongDate formats t as "5 марта 2025 г. в 14:30".
func LongDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d г. в %02d:%02d", t.Day(), monthsGenitive[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}

func kindLabel(k lxp.TaskKind) string {
	if k == lxp.KindTask {
		return "Учебная практика"
	}
	return "Тест"
}

// FormatDeadlines renders upcoming tasks as HTML. Tasks whose deadline is not
// after now are skipped; ok is false when nothing remains.
func FormatDeadlines(tasks []lxp.Task, now time.Time, loc *time.Location) (text string, ok bool) {
	if loc == nil {
		loc = time.UTC
	}
	var d tgui.Doc
	d.Line(tgui.B("Ваши приближающиеся сроки:")).Blank()
	n := 0
	for _, t := range tasks {
		if !t.Deadline.After(now) {
			continue
		}
		n++
		d.Line(tgui.B(kindLabel(t.Kind)))
		d.Line(tgui.Esc(t.Name))
		d.Line("Тема: ", tgui.Esc(t.Topic))
		d.Line(tgui.Esc(TimeLeft(t.Deadline.Sub(now))))
		d.Line("Срок: ", tgui.Esc(LongDate(t.Deadline.In(loc))))
		if t.Link != "" {
			d.Line(tgui.Link("Перейти к списку задач", t.Link))
			d.Line("-------------------------").Blank()
		} else {
			d.Blank()
		}
	}
	if n == 0 {
		return "", false
	}
	return d.String(), true
}

var (
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// StripHTML removes tags and non-breaking space entities and collapses
// whitespace.
func StripHTML(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// maxNoteRunes bounds one notification body in the list.
const maxNoteRunes = 600

// FormatNotifications renders assignment notifications as an HTML list.
func FormatNotifications(items []lxp.Notification, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var d tgui.Doc
	d.Line(tgui.Escf("📬 Уведомления о заданиях (%d):", len(items))).Blank()
	for i, n := range items {
		d.Line(tgui.Escf("%d. ", i+1), tgui.B(n.Title))
		if !n.CreatedAt.IsZero() {
			d.Line("   📅 ", tgui.Esc(n.CreatedAt.In(loc).Format("02.01.2006")))
		}
		d.Line("   ", tgui.Esc(tgui.TruncRunes(StripHTML(n.Body), maxNoteRunes))).Blank()
	}
	return d.String()
}

// ValidIdentifier normalizes and checks a login e-mail.
func ValidIdentifier(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 5 || !strings.Contains(s, "@") || !strings.Contains(s, ".") {
		return "", false
	}
	return strings.ToLower(s), true
}

// ValidSecret checks the minimal password length.
func ValidSecret(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, len(s) >= 4
}
