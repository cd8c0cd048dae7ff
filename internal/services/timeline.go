package services

import (
	"sort"
	"time"

	"github.com/thereayou/cipherchat/internal/models"
)

// UndecryptableText показывается вместо текста, который не удалось расшифровать
const UndecryptableText = "[unable to decrypt message]"

// TurnGap: сообщения одного автора с таким или меньшим интервалом образуют один ход
const TurnGap = 5 * time.Minute

// Entry сообщение в ленте вместе с расшифрованным текстом и флагами для зрителя
type Entry struct {
	Message     models.Message `json:"message"`
	Text        string         `json:"text"`
	DecryptErr  error          `json:"-"`
	FirstOfTurn bool           `json:"first_of_turn"`
	Editable    bool           `json:"editable"`
	Deletable   bool           `json:"deletable"`
}

func (e Entry) Undecryptable() bool {
	return e.DecryptErr != nil
}

// DateGroup непрерывная группа сообщений за один календарный день.
// Сообщения без серверного времени собираются в последнюю группу с Pending.
type DateGroup struct {
	Date    time.Time `json:"date"`
	Pending bool      `json:"pending"`
	Entries []Entry   `json:"entries"`
}

// Timeline одна доставка ленты комнаты
type Timeline struct {
	RoomID  string      `json:"room_id"`
	Groups  []DateGroup `json:"groups"`
	Skipped int         `json:"skipped"`
	Err     error       `json:"-"`
}

func (t Timeline) Entries() []Entry {
	out := make([]Entry, 0)
	for _, g := range t.Groups {
		out = append(out, g.Entries...)
	}
	return out
}

func (t Timeline) Len() int {
	n := 0
	for _, g := range t.Groups {
		n += len(g.Entries)
	}
	return n
}

// SortEntries стабильно сортирует по createdAt. Без времени идут в конец,
// при равенстве сохраняется порядок поступления.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Message.CreatedAt, entries[j].Message.CreatedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
}

// GroupByDate ожидает уже отсортированные записи
func GroupByDate(entries []Entry, loc *time.Location) []DateGroup {
	if loc == nil {
		loc = time.Local
	}

	groups := make([]DateGroup, 0)
	for _, e := range entries {
		if e.Message.CreatedAt == nil {
			if n := len(groups); n == 0 || !groups[n-1].Pending {
				groups = append(groups, DateGroup{Pending: true})
			}
			groups[len(groups)-1].Entries = append(groups[len(groups)-1].Entries, e)
			continue
		}

		day := startOfDay(*e.Message.CreatedAt, loc)
		if n := len(groups); n == 0 || groups[n-1].Pending || !groups[n-1].Date.Equal(day) {
			groups = append(groups, DateGroup{Date: day})
		}
		groups[len(groups)-1].Entries = append(groups[len(groups)-1].Entries, e)
	}

	for i := range groups {
		markTurns(groups[i].Entries)
	}
	return groups
}

// markTurns отмечает первое сообщение каждого хода внутри группы
func markTurns(entries []Entry) {
	for i := range entries {
		if i == 0 {
			entries[i].FirstOfTurn = true
			continue
		}
		prev, cur := entries[i-1].Message, entries[i].Message
		if prev.Author.UID != cur.Author.UID {
			entries[i].FirstOfTurn = true
			continue
		}
		if prev.CreatedAt != nil && cur.CreatedAt != nil && cur.CreatedAt.Sub(*prev.CreatedAt) > TurnGap {
			entries[i].FirstOfTurn = true
			continue
		}
		entries[i].FirstOfTurn = false
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
